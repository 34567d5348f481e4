// CLAUDE:SUMMARY Starts and stops the Xvfb display that backs headful crawl sessions, sized to the session viewport.
package browser

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

const xvfbStartTimeout = 5 * time.Second

// xvfb is a running virtual X display.
type xvfb struct {
	display string
	cmd     *exec.Cmd
	logger  *slog.Logger
}

// startXvfb launches Xvfb on display with a w x h screen and waits for its
// socket.
func startXvfb(display string, w, h int, logger *slog.Logger) (*xvfb, error) {
	screen := fmt.Sprintf("%dx%dx24", w, h)
	cmd := exec.Command("Xvfb", display, "-screen", "0", screen, "-ac", "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start xvfb: %w", err)
	}
	x := &xvfb{display: display, cmd: cmd, logger: logger}

	sock := "/tmp/.X11-unix/X" + strings.TrimPrefix(display, ":")
	for deadline := time.Now().Add(xvfbStartTimeout); ; time.Sleep(50 * time.Millisecond) {
		if _, err := os.Stat(sock); err == nil {
			break
		}
		if time.Now().After(deadline) {
			x.stop()
			return nil, fmt.Errorf("xvfb: no socket %s after %s", sock, xvfbStartTimeout)
		}
	}
	logger.Info("browser: xvfb started", "display", display, "screen", screen, "pid", cmd.Process.Pid)
	return x, nil
}

// stop kills the display. Safe on nil.
func (x *xvfb) stop() {
	if x == nil || x.cmd == nil || x.cmd.Process == nil {
		return
	}
	x.cmd.Process.Kill()
	x.cmd.Wait()
	x.logger.Info("browser: xvfb stopped", "display", x.display)
	x.cmd = nil
}
