// Command sigscan runs the constructor signatures against a library file on
// disk, to check them against a new game build before it ships.
package main

import (
	"debug/elf"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	"mbloader/hexdump"
	"mbloader/hook"
	"mbloader/process"
	"mbloader/process_blob"
	"mbloader/scan"
	"mbloader/signatures"
)

func main() {
	libFlag := flag.String("lib", "", "Path to "+signatures.HostLibrary)
	archFlag := flag.String("arch", runtime.GOARCH, fmt.Sprintf("Signature set, one of %v", signatures.Architectures()))
	aobFlag := flag.String("aob", "", "Scan for this pattern instead (e.g., 'ff c3 ?? d1')")
	flag.Parse()

	if *libFlag == "" {
		fmt.Println("Error: --lib is required")
		flag.Usage()
		os.Exit(1)
	}

	arch, err := hook.ForArch(*archFlag)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	var candidates []process.AOB
	if *aobFlag != "" {
		aob, err := process.ParseAOB(*aobFlag)
		if err != nil {
			fmt.Printf("Error parsing AOB: %v\n", err)
			os.Exit(1)
		}
		candidates = []process.AOB{aob}
	} else {
		candidates, err = signatures.ResourcePackManagerCtor(arch.Name)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	}

	blob, err := loadText(*libFlag)
	if err != nil {
		fmt.Printf("Error loading %s: %v\n", *libFlag, err)
		os.Exit(1)
	}
	maps, _ := blob.GetMemoryMap()
	text := maps[0]
	fmt.Printf("Text segment %s\n", text.String())

	scanner := scan.New(arch.ScanOptions()...)
	for i, aob := range candidates {
		matches, err := scanner.ScanRegion(blob, text, aob)
		if err != nil {
			fmt.Printf("Candidate %d: %v\n", i, err)
			continue
		}
		fmt.Printf("Candidate %d: %d match(es)\n", i, len(matches))
		for _, match := range matches {
			dump(blob, match)
		}
	}

	target, err := scanner.FindFirst(blob, text, candidates)
	if err != nil {
		fmt.Printf("No signature matched: %v\n", err)
		os.Exit(2)
	}
	fmt.Printf("Hook target %s\n", target.ToString())
}

// loadText maps the first executable PT_LOAD segment at its virtual address
func loadText(path string) (*process_blob.ProcessBlob, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Flags&elf.PF_X == 0 {
			continue
		}
		data, err := io.ReadAll(prog.Open())
		if err != nil {
			return nil, fmt.Errorf("failed to read segment at %#x: %w", prog.Vaddr, err)
		}
		blob := process_blob.NewProcessBlob(process.ProcessMemoryAddress(prog.Vaddr), data)
		blob.SetPath(path)
		return blob, nil
	}
	return nil, fmt.Errorf("no executable segment")
}

func dump(proc process.Process, match process.ProcessMemoryAddress) {
	start := match &^ 0xF
	data, err := proc.ReadMemory(start, 64)
	if err != nil {
		fmt.Printf("  %s (unreadable: %v)\n", match.ToString(), err)
		return
	}
	fmt.Printf("  %s\n", match.ToString())
	fmt.Print(hexdump.DumpWithOffset(data, uint64(start)))
}
