package tui

import (
	"fmt"

	"github.com/muesli/termenv"
)

// PrintBanner writes the interactive-mode banner to stdout.
func PrintBanner(version string) {
	p := termenv.ColorProfile()

	s1 := termenv.String("               _ _       _                         _ ").Foreground(p.Color("#818cf8"))
	s2 := termenv.String("  _____      _(_) |_ ___| |__  _   _  __ _ _ __ __| |").Foreground(p.Color("#a78bfa"))
	s3 := termenv.String(" / __\\ \\ /\\ / / | __/ __| '_ \\| | | |/ _` | '__/ _` |").Foreground(p.Color("#c084fc"))
	s4 := termenv.String(" \\__ \\\\ V  V /| | || (__| | | | |_| | (_| | | | (_| |").Foreground(p.Color("#e879f9"))
	s5 := termenv.String(" |___/ \\_/\\_/ |_|\\__\\___|_| |_|\\__, |\\__,_|_|  \\__,_|").Foreground(p.Color("#f472b6"))
	s6 := termenv.String("                               |___/                 ").Foreground(p.Color("#fb7185"))

	fmt.Println()
	fmt.Println(s1)
	fmt.Println(s2)
	fmt.Println(s3)
	fmt.Println(s4)
	fmt.Println(s5)
	fmt.Println(s6)
	fmt.Printf("  executable workflow rails %s\n\n", version)
}
