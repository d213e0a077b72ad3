package lib

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path"
	"strconv"
	"time"
)

// Printer is the print capability consumed by the review flow. Printing is
// fire-and-forget from the machine's point of view, the outcome is logged.
type Printer interface {
	Print(image []byte, copies int) error
}

// LPPrinter submits jobs through the CUPS lp command. The printer name is
// optional, lp falls back to the system default.
type LPPrinter struct {
	Name string
}

func NewLPPrinter() *LPPrinter {
	return &LPPrinter{Name: os.Getenv("PRINTER_NAME")}
}

func (p *LPPrinter) Print(image []byte, copies int) error {
	if copies < 1 {
		copies = 1
	}
	tmp := path.Join(os.TempDir(), fmt.Sprintf("booth-print-%d.jpg", time.Now().UnixNano()))
	if err := os.WriteFile(tmp, image, 0o644); err != nil {
		return err
	}
	defer os.Remove(tmp)
	args := []string{"-n", strconv.Itoa(copies)}
	if p.Name != "" {
		args = append(args, "-d", p.Name)
	}
	args = append(args, tmp)
	out, err := exec.Command("lp", args...).CombinedOutput()
	if err != nil {
		log.Printf("[printer] lp failed: %s (%s)\n", err.Error(), string(out))
		return err
	}
	log.Printf("[printer] job submitted: %s", string(out))
	return nil
}
