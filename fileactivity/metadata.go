package fileactivity

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
	_ "golang.org/x/image/bmp" // register decoder

	"github.com/projecteru2/rf4watch/configbridge"
	"github.com/projecteru2/rf4watch/types"
	"github.com/projecteru2/rf4watch/utils"
)

const maxLogLine = 1 << 20

// extractMetadata returns whatever it could gather for path; on error the
// returned map still carries the fields read before the failure.
func extractMetadata(path string, cat types.Category, size int64, tailLines int) (map[string]any, error) {
	md := map[string]any{
		"format":     strings.ToLower(filepath.Ext(path)),
		"size_bytes": size,
	}
	var err error
	switch cat {
	case types.CategoryLog:
		err = logMetadata(path, tailLines, md)
	case types.CategoryScreenshot:
		err = imageMetadata(path, md)
	case types.CategoryConfig:
		err = configMetadata(path, md)
	}
	return md, err
}

// logMetadata counts lines and level markers. Each line counts toward at most
// one level, preferring error over warning over info.
func logMetadata(path string, tailLines int, md map[string]any) error {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	tail := utils.NewRing[string](tailLines)
	var lines, errs, warns, infos int
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), maxLogLine)
	for sc.Scan() {
		line := sc.Text()
		lines++
		tail.Push(strings.TrimSpace(line))
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "error"):
			errs++
		case strings.Contains(lower, "warn"):
			warns++
		case strings.Contains(lower, "info"):
			infos++
		}
	}
	md["line_count"] = lines
	md["last_lines"] = tail.Last(0)
	md["error_count"] = errs
	md["warning_count"] = warns
	md["info_count"] = infos
	return sc.Err()
}

func imageMetadata(path string, md map[string]any) error {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck
	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return fmt.Errorf("decode image header: %w", err)
	}
	md["width"] = cfg.Width
	md["height"] = cfg.Height
	md["image_format"] = format
	md["mode"] = colorMode(cfg.ColorModel)
	return nil
}

func colorMode(m color.Model) string {
	if _, ok := m.(color.Palette); ok {
		return "paletted"
	}
	switch m {
	case color.RGBAModel, color.RGBA64Model:
		return "rgba"
	case color.NRGBAModel, color.NRGBA64Model:
		return "nrgba"
	case color.GrayModel, color.Gray16Model:
		return "gray"
	case color.YCbCrModel:
		return "ycbcr"
	case color.CMYKModel:
		return "cmyk"
	default:
		return "unknown"
	}
}

func configMetadata(path string, md map[string]any) error {
	format, err := configbridge.FormatOf(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return err
	}
	m, err := configbridge.Decode(format, data)
	if err != nil {
		return err
	}
	md["config_format"] = string(format)
	md["key_count"] = len(m)
	return nil
}

// hashFile digests files no larger than limit; "" otherwise.
func hashFile(path string, size, limit int64) (string, error) {
	if size > limit {
		return "", nil
	}
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck
	d, err := digest.FromReader(f)
	if err != nil {
		return "", err
	}
	return d.String(), nil
}
