// internal/output/writer.go - Output writing implementation
package output

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileWriter writes output to a single file with optional compression
type FileWriter struct {
	formatter   Formatter
	destination Destination
	config      *WriterConfig
}

// NewFileWriter creates a new file-based writer
func NewFileWriter(config *WriterConfig, destination string) (*FileWriter, error) {
	formatter, err := NewFormatter(&FormatterConfig{
		Format:       config.Format,
		Pretty:       config.Pretty,
		IncludeStats: config.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create formatter: %w", err)
	}

	dest, err := newFileDestination(destination, config.Compression)
	if err != nil {
		return nil, fmt.Errorf("failed to create file destination: %w", err)
	}

	return &FileWriter{
		formatter:   formatter,
		destination: dest,
		config:      config,
	}, nil
}

// Write writes a single layer to the output destination
func (w *FileWriter) Write(layer *LayerOutput) error {
	data, err := w.formatter.Format(layer)
	if err != nil {
		return fmt.Errorf("formatting failed: %w", err)
	}

	if _, err := w.destination.Write(data); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	return nil
}

// WriteBatch writes multiple layers as one document
func (w *FileWriter) WriteBatch(layers []*LayerOutput) error {
	data, err := w.formatter.FormatBatch(layers)
	if err != nil {
		return fmt.Errorf("batch formatting failed: %w", err)
	}

	if _, err := w.destination.Write(data); err != nil {
		return fmt.Errorf("batch write failed: %w", err)
	}

	return nil
}

// Name returns the path of the written file
func (w *FileWriter) Name() string {
	return w.destination.Name()
}

// Size returns the number of bytes written, before compression
func (w *FileWriter) Size() int64 {
	return w.destination.Size()
}

// Close closes the writer and underlying destination
func (w *FileWriter) Close() error {
	return w.destination.Close()
}

// StdoutWriter writes output to standard output
type StdoutWriter struct {
	formatter Formatter
	out       io.Writer
}

// NewStdoutWriter creates a new stdout-based writer
func NewStdoutWriter(format Format, pretty bool) (*StdoutWriter, error) {
	return newStreamWriter(os.Stdout, format, pretty)
}

func newStreamWriter(out io.Writer, format Format, pretty bool) (*StdoutWriter, error) {
	formatter, err := NewFormatter(&FormatterConfig{
		Format:       format,
		Pretty:       pretty,
		IncludeStats: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create formatter: %w", err)
	}

	return &StdoutWriter{formatter: formatter, out: out}, nil
}

// Write writes a single layer to stdout
func (w *StdoutWriter) Write(layer *LayerOutput) error {
	data, err := w.formatter.Format(layer)
	if err != nil {
		return fmt.Errorf("formatting failed: %w", err)
	}
	return w.writeLine(data)
}

// WriteBatch writes multiple layers to stdout as one document
func (w *StdoutWriter) WriteBatch(layers []*LayerOutput) error {
	data, err := w.formatter.FormatBatch(layers)
	if err != nil {
		return fmt.Errorf("batch formatting failed: %w", err)
	}
	return w.writeLine(data)
}

func (w *StdoutWriter) writeLine(data []byte) error {
	if _, err := w.out.Write(data); err != nil {
		return fmt.Errorf("write to stdout failed: %w", err)
	}

	// Add newline for readability
	_, err := w.out.Write([]byte("\n"))
	return err
}

// Close is a no-op for stdout writer
func (w *StdoutWriter) Close() error {
	return nil
}

// MultiFileWriter writes each layer to a separate file
type MultiFileWriter struct {
	formatter Formatter
	baseDir   string
	config    *WriterConfig
	written   []string
	size      int64
}

// NewMultiFileWriter creates a writer that outputs each layer to a separate file
func NewMultiFileWriter(config *WriterConfig, baseDir string) (*MultiFileWriter, error) {
	formatter, err := NewFormatter(&FormatterConfig{
		Format:       config.Format,
		Pretty:       config.Pretty,
		IncludeStats: config.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create formatter: %w", err)
	}

	// Ensure base directory exists
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &MultiFileWriter{
		formatter: formatter,
		baseDir:   baseDir,
		config:    config,
	}, nil
}

// Write writes a single layer to its own file
func (w *MultiFileWriter) Write(layer *LayerOutput) error {
	path := filepath.Join(w.baseDir, w.generateFilename(layer.Name))

	dest, err := newFileDestination(path, w.config.Compression)
	if err != nil {
		return fmt.Errorf("failed to create file destination: %w", err)
	}

	data, err := w.formatter.Format(layer)
	if err != nil {
		dest.Close()
		return fmt.Errorf("formatting failed: %w", err)
	}

	if _, err := dest.Write(data); err != nil {
		dest.Close()
		return fmt.Errorf("write failed: %w", err)
	}

	if err := dest.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dest.Name(), err)
	}
	w.written = append(w.written, dest.Name())
	w.size += dest.Size()
	return nil
}

// WriteBatch writes each layer in the batch to separate files
func (w *MultiFileWriter) WriteBatch(layers []*LayerOutput) error {
	for _, layer := range layers {
		if err := w.Write(layer); err != nil {
			return fmt.Errorf("failed to write layer %s: %w", layer.Name, err)
		}
	}
	return nil
}

// Files returns the paths written so far
func (w *MultiFileWriter) Files() []string {
	return append([]string(nil), w.written...)
}

// Size returns the number of bytes written across all files, before compression
func (w *MultiFileWriter) Size() int64 {
	return w.size
}

// Close is a no-op for multi-file writer
func (w *MultiFileWriter) Close() error {
	return nil
}

// generateFilename creates a file name for a layer
func (w *MultiFileWriter) generateFilename(layerName string) string {
	ext := w.formatter.Extension()
	if w.config.Compression {
		ext += ".gz"
	}
	return sanitizeName(layerName) + ext
}

// sanitizeName keeps layer names usable as file names
func sanitizeName(name string) string {
	if name == "" {
		return "layer"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}

// fileDestination implements the Destination interface for file output
type fileDestination struct {
	file   *os.File
	writer io.WriteCloser
	name   string
	size   int64
}

// newFileDestination creates a new file destination with optional compression
func newFileDestination(path string, compression bool) (*fileDestination, error) {
	if compression && !strings.HasSuffix(path, ".gz") {
		path += ".gz"
	}

	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	var writer io.WriteCloser = file
	if compression {
		writer = gzip.NewWriter(file)
	}

	return &fileDestination{
		file:   file,
		writer: writer,
		name:   path,
	}, nil
}

// Write implements io.Writer
func (d *fileDestination) Write(p []byte) (n int, err error) {
	n, err = d.writer.Write(p)
	d.size += int64(n)
	return n, err
}

// Close implements io.Closer
func (d *fileDestination) Close() error {
	if d.writer != io.WriteCloser(d.file) {
		if err := d.writer.Close(); err != nil {
			d.file.Close()
			return err
		}
	}
	return d.file.Close()
}

// Name returns the destination file path
func (d *fileDestination) Name() string {
	return d.name
}

// Size returns the number of bytes written
func (d *fileDestination) Size() int64 {
	return d.size
}

// NewWriter creates the appropriate writer based on configuration
func NewWriter(config *WriterConfig, destination string, multiFile bool) (Writer, error) {
	if destination == "" || destination == "-" {
		return NewStdoutWriter(config.Format, config.Pretty)
	}

	if multiFile {
		return NewMultiFileWriter(config, destination)
	}

	return NewFileWriter(config, destination)
}
