package convert

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var officeExts = []string{".doc", ".docx", ".odt", ".rtf", ".ppt", ".pptx", ".odp", ".xls", ".xlsx", ".ods"}

// OfficeConverter runs a headless office suite to produce a PDF.
type OfficeConverter struct {
	binary  string
	Timeout time.Duration

	once     sync.Once
	resolved string
	lookErr  error
}

// NewOfficeConverter uses binary, or soffice/libreoffice from PATH when empty.
func NewOfficeConverter(binary string) *OfficeConverter {
	return &OfficeConverter{binary: binary, Timeout: 2 * time.Minute}
}

func (*OfficeConverter) Name() string { return MethodOffice }

func (*OfficeConverter) Accepts(filename string, _ []byte) bool {
	return hasExt(filename, officeExts...)
}

func (c *OfficeConverter) Convert(ctx context.Context, filename string, data []byte) (*Document, error) {
	bin, err := c.resolve()
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "printrelay-office-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "input"+ext(filename))
	if err := os.WriteFile(src, data, 0600); err != nil {
		return nil, fmt.Errorf("write input: %w", err)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, bin, "--headless", "--convert-to", "pdf", "--outdir", dir, src)
	cmd.Dir = dir
	// A private profile avoids clashing with a running desktop instance.
	cmd.Env = append(os.Environ(), "HOME="+dir)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("office conversion failed: %w\nOutput: %s", err, strings.TrimSpace(string(output)))
	}

	pdf, err := os.ReadFile(filepath.Join(dir, "input.pdf"))
	if err != nil {
		return nil, fmt.Errorf("office produced no pdf: %w", err)
	}
	pages, err := PageCount(pdf)
	if err != nil {
		return nil, err
	}
	return &Document{Data: pdf, Method: MethodOffice, PageCount: pages}, nil
}

func (c *OfficeConverter) resolve() (string, error) {
	c.once.Do(func() {
		candidates := []string{"soffice", "libreoffice"}
		if c.binary != "" {
			candidates = []string{c.binary}
		}
		for _, name := range candidates {
			if path, err := exec.LookPath(name); err == nil {
				c.resolved = path
				return
			}
		}
		c.lookErr = fmt.Errorf("%w: %s not found", ErrUnavailable, strings.Join(candidates, "/"))
	})
	return c.resolved, c.lookErr
}
