// Command materialfix runs host detection and the material transformer on
// files, the same way the loader does in game.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"mbloader/material"
)

func main() {
	hostFlag := flag.String("host", "", "The game's own RenderChunk.material.bin")
	inFlag := flag.String("in", "", "Pack material to convert")
	outFlag := flag.String("out", "", "Where to write the converted material")
	versionsFlag := flag.String("versions", "", "Comma separated versions to try, e.g. 'v1.20.80,v1.21.20' (default all)")
	noLightmap := flag.Bool("no-lightmap", false, "Disable the lightmap fix")
	noTextureLod := flag.Bool("no-texturelod", false, "Disable the texture LOD fix")
	flag.Parse()

	if *hostFlag == "" || *inFlag == "" {
		fmt.Println("Error: --host and --in are required")
		flag.Usage()
		os.Exit(1)
	}

	options := material.NewOptions()
	options.SetLightmapFix(!*noLightmap)
	options.SetTextureLodFix(!*noTextureLod)
	if *versionsFlag != "" {
		if err := options.SetVersionNames(strings.Split(*versionsFlag, ",")); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	}

	detector := material.NewDetector(func(string) ([]byte, error) {
		return os.ReadFile(*hostFlag)
	})
	host := detector.Detect()
	if !host.Known {
		fmt.Printf("Error: cannot detect the version of %s\n", *hostFlag)
		os.Exit(1)
	}
	fmt.Printf("Host %s dithering=%v packed16=%v\n", host.Version, host.DitheringLightmaps, host.PackedLightmaps16)

	raw, err := os.ReadFile(*inFlag)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	out, changed := material.NewTransformer(detector, options).Transform(raw)
	if !changed {
		fmt.Println("No change needed")
		return
	}
	fmt.Printf("Converted %d -> %d bytes\n", len(raw), len(out))

	if *outFlag == "" {
		return
	}
	if err := os.WriteFile(*outFlag, out, 0o644); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
