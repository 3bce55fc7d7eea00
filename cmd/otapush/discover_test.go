package main

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func TestParseEntry(t *testing.T) {
	e := &zeroconf.ServiceEntry{
		Port:     8080,
		Text:     []string{"version=1.2.3", "device=bench"},
		AddrIPv4: []net.IP{net.IPv4(192, 168, 1, 9)},
	}
	e.Instance = "bench"

	d, ok := parseEntry(e)
	if !ok {
		t.Fatal("entry should parse")
	}
	if d.Name != "bench" {
		t.Fatalf("Name = %q, want bench", d.Name)
	}
	if d.Addr != "192.168.1.9:8080" {
		t.Fatalf("Addr = %q, want 192.168.1.9:8080", d.Addr)
	}
	if d.Version != "1.2.3" {
		t.Fatalf("Version = %q, want 1.2.3", d.Version)
	}
}

func TestParseEntrySkipsAddressless(t *testing.T) {
	e := &zeroconf.ServiceEntry{Port: 8080}
	e.Instance = "ghost"
	if _, ok := parseEntry(e); ok {
		t.Fatal("entry without an address should be skipped")
	}
}
