package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/grandcat/zeroconf"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"provisioncode-go/logging"
)

const (
	serviceType   = "_provision._tcp"
	serviceDomain = "local."
)

var (
	nameStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("87"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

// device is one discovered provisioner.
type device struct {
	Name    string
	Addr    string // host:port
	Version string
}

func browse(ctx context.Context, timeout time.Duration) ([]device, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var devices []device
	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			d, ok := parseEntry(entry)
			if !ok {
				logging.Debug("mdns entry without address", zap.String("instance", entry.Instance))
				continue
			}
			logging.Debug("mdns entry", zap.String("name", d.Name), zap.String("addr", d.Addr))
			devices = append(devices, d)
		}
	}()

	if err := resolver.Browse(ctx, serviceType, serviceDomain, entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}
	<-ctx.Done()
	<-done

	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices, nil
}

func parseEntry(e *zeroconf.ServiceEntry) (device, bool) {
	var ip string
	for _, a := range e.AddrIPv4 {
		ip = a.String()
		break
	}
	if ip == "" && len(e.AddrIPv6) > 0 {
		ip = e.AddrIPv6[0].String()
	}
	if ip == "" {
		return device{}, false
	}
	d := device{
		Name: e.Instance,
		Addr: fmt.Sprintf("%s:%d", ip, e.Port),
	}
	for _, txt := range e.Text {
		if v, ok := strings.CutPrefix(txt, "version="); ok {
			d.Version = v
		}
	}
	return d, true
}

// resolveTarget turns the --host/--device flags into a host:port,
// discovering over mDNS when no host is given.
func resolveTarget(cmd *cobra.Command) (string, error) {
	if flagHost != "" {
		target := flagHost
		if !strings.Contains(target, ":") {
			target += ":8080"
		}
		logging.Debug("target from --host", zap.String("target", target))
		return target, nil
	}

	devices, err := browse(cmd.Context(), time.Duration(flagTimeout)*time.Second)
	if err != nil {
		return "", err
	}
	if flagDevice != "" {
		for _, d := range devices {
			if d.Name == flagDevice {
				return d.Addr, nil
			}
		}
		return "", fmt.Errorf("device %q not found within %ds", flagDevice, flagTimeout)
	}
	switch len(devices) {
	case 0:
		return "", fmt.Errorf("no devices found; a device only answers while serving updates")
	case 1:
		return devices[0].Addr, nil
	default:
		names := make([]string, len(devices))
		for i, d := range devices {
			names[i] = d.Name
		}
		return "", fmt.Errorf("%d devices found (%s); pick one with --device",
			len(devices), strings.Join(names, ", "))
	}
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Discover provisioner devices on the network",
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	fmt.Printf("Browsing %s for %ds...\n\n", serviceType, flagTimeout)

	devices, err := browse(cmd.Context(), time.Duration(flagTimeout)*time.Second)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No devices found. A device only announces while serving updates.")
		return nil
	}
	for _, d := range devices {
		line := nameStyle.Render(d.Name) + "  " + d.Addr
		if d.Version != "" {
			line += "  " + dimStyle.Render(d.Version)
		}
		fmt.Println(line)
	}
	return nil
}
