// Command appdump lists the bundled applications and disassembles them.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"

	"strideos/kernel/isa"
	"strideos/kernel/loader"
	"strideos/user/apps"
)

func main() {
	var name string
	var data bool
	flag.StringVar(&name, "app", "", "Application to disassemble (default: list all).")
	flag.BoolVar(&data, "data", false, "Also hex-dump the data segment.")
	flag.Parse()

	reg := apps.Registry()
	if name == "" {
		list(os.Stdout, reg)
		return
	}
	img, err := reg.Lookup(name)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if err := dump(os.Stdout, img, data); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func list(w io.Writer, reg *loader.Registry) {
	for _, n := range reg.Names() {
		img, err := reg.Lookup(n)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "%-12s %4d insts %5d data bytes\n", n, len(img.Text), len(img.Data))
	}
}

// dump prints the address space img loads into, then its text.
func dump(w io.Writer, img *loader.Image, data bool) error {
	space, entry, sp, err := loader.Load(img)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: entry %#x sp %#x\n", img.Name, entry, sp)
	for _, a := range space.Areas() {
		fmt.Fprintf(w, "  area %s\n", a)
	}
	fmt.Fprintln(w, "text:")
	for i, in := range img.Text {
		fmt.Fprintf(w, "  %#08x  %s\n", loader.TextBase+uint64(i*isa.InstBytes), in)
	}
	if !data || len(img.Data) == 0 {
		return nil
	}
	fmt.Fprintf(w, "data @ %#x:\n", loader.DataBase(len(img.Text)))
	d := hex.Dumper(w)
	if _, err := d.Write(img.Data); err != nil {
		return err
	}
	return d.Close()
}
