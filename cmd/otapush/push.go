package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"provisioncode-go/logging"
)

var pushCmd = &cobra.Command{
	Use:   "push <firmware.bin>",
	Short: "Upload a firmware image to a device",
	Long: `Upload a firmware image to the device's update endpoint. The device
applies the image and reboots once the upload checks out.`,
	Args: cobra.ExactArgs(1),
	RunE: runPush,
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type progressMsg int64

type doneMsg struct {
	reply string
	err   error
}

type pushModel struct {
	bar    progress.Model
	spin   spinner.Model
	file   string
	target string
	total  int64
	sent   int64
	done   bool
	reply  string
	err    error
}

func newPushModel(file, target string, total int64) pushModel {
	return pushModel{
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spin:   spinner.New(spinner.WithSpinner(spinner.Dot)),
		file:   file,
		target: target,
		total:  total,
	}
}

func (m pushModel) Init() tea.Cmd { return m.spin.Tick }

func (m pushModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.done = true
			m.err = fmt.Errorf("cancelled")
			return m, tea.Quit
		}
	case progressMsg:
		m.sent = int64(msg)
	case doneMsg:
		m.done = true
		m.reply = msg.reply
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m pushModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Pushing %s to %s", filepath.Base(m.file), m.target)))
	b.WriteString("\n\n")

	if m.done {
		if m.err != nil {
			b.WriteString(failStyle.Render("✗ " + m.err.Error()))
		} else {
			b.WriteString(m.bar.ViewAs(1) + "\n\n")
			b.WriteString(okStyle.Render("✓ " + strings.TrimSpace(m.reply)))
			b.WriteString("\n" + dimStyle.Render("device reboots once the image checks out"))
		}
		b.WriteString("\n")
		return b.String()
	}

	pct := float64(0)
	if m.total > 0 {
		pct = float64(m.sent) / float64(m.total)
	}
	fmt.Fprintf(&b, "%s %s  %d / %d bytes\n", m.spin.View(), m.bar.ViewAs(pct), m.sent, m.total)
	return b.String()
}

// countingReader reports the upload position as the HTTP client consumes
// the file.
type countingReader struct {
	r      io.Reader
	n      int64
	report func(int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.n += int64(n)
		c.report(c.n)
	}
	return n, err
}

func runPush(cmd *cobra.Command, args []string) error {
	target, err := resolveTarget(cmd)
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s is empty", args[0])
	}

	p := tea.NewProgram(newPushModel(args[0], target, info.Size()))
	go func() {
		reply, err := upload(target, f, info.Size(), func(sent int64) {
			p.Send(progressMsg(sent))
		})
		p.Send(doneMsg{reply: reply, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(pushModel); ok && m.err != nil {
		return m.err
	}
	return nil
}

func upload(target string, f *os.File, size int64, report func(int64)) (string, error) {
	logging.Debug("uploading", zap.String("target", target), zap.Int64("bytes", size))
	body := &countingReader{r: f, report: report}
	req, err := http.NewRequest(http.MethodPost, "http://"+target+"/update", body)
	if err != nil {
		return "", err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")

	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	reply, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("device answered %s: %s", resp.Status, strings.TrimSpace(string(reply)))
	}
	return string(reply), nil
}
