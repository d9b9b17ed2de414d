package main

import (
	"strings"
	"testing"
)

func TestScanHelpListsExtensions(t *testing.T) {
	want := "Originals are recognised by extension: .bmp .gif .jpeg .jpg .png .tif .tiff"
	if !strings.Contains(scanCmd.Long, want) {
		t.Errorf("scan help missing extension list:\n%s", scanCmd.Long)
	}
}

func TestScanStrategyFlagDefault(t *testing.T) {
	f := scanCmd.Flags().Lookup("strategy")
	if f == nil {
		t.Fatal("strategy flag not registered")
	}
	if f.DefValue != "auto" {
		t.Errorf("strategy default = %q, want auto", f.DefValue)
	}
}
