package parser

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/routelens/routelens/internal/model"
	"github.com/routelens/routelens/internal/pool"
)

// ParseLogFile classifies every line of content and returns the events in
// line order. Lines without a leading timestamp are dropped.
func ParseLogFile(content string) []model.Event {
	return defaultClassifier.ParseText(content)
}

// ParseText is ParseLogFile with this classifier's time zone.
func (c *Classifier) ParseText(content string) []model.Event {
	lines := strings.Split(content, "\n")
	events := make([]model.Event, 0, len(lines))
	for _, line := range lines {
		ev := c.Classify(strings.TrimSuffix(line, "\r"))
		if !ev.Common().HasTimestamp() {
			continue
		}
		events = append(events, ev)
	}
	return events
}

// CountKinds tallies events by kind. The KindGeneric entry is the number of
// lines no matcher recognised.
func CountKinds(events []model.Event) map[model.Kind]int {
	counts := make(map[model.Kind]int)
	for _, ev := range events {
		counts[ev.Kind()]++
	}
	return counts
}

// LogParser is the streaming form of ParseLogFile.
type LogParser struct {
	cfg        Config
	classifier *Classifier
	bufferPool *pool.BufferPool
}

// NewLogParser creates a streaming base-log parser.
func NewLogParser(cfg Config) *LogParser {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = pool.DefaultBufferSize
	}
	return &LogParser{
		cfg:        cfg,
		classifier: NewClassifier(cfg.Location),
		bufferPool: pool.NewBufferPool(cfg.BufferSize),
	}
}

// Parse implements the Parser interface.
func (p *LogParser) Parse(ctx context.Context, r io.Reader, out chan<- model.Event) error {
	reader := bufio.NewReaderSize(r, p.cfg.BufferSize)
	buf := p.bufferPool.Get()
	defer p.bufferPool.Put(buf)

	for {
		select {
		case <-ctx.Done():
			return ErrContextCanceled
		default:
		}

		buf.Reset()
		eof, err := p.readLine(reader, buf)
		if err != nil {
			return err
		}
		if eof && buf.Len() == 0 {
			return nil
		}

		line := strings.TrimSuffix(buf.String(), "\r")
		ev := p.classifier.Classify(line)
		if ev.Common().HasTimestamp() || p.cfg.KeepUntimed {
			select {
			case out <- ev:
			case <-ctx.Done():
				return ErrContextCanceled
			}
		}

		if eof {
			return nil
		}
	}
}

// readLine appends the next line, without its newline, to buf. Lines longer
// than the reader's buffer are assembled from several slices.
func (p *LogParser) readLine(reader *bufio.Reader, buf *pool.ByteBuffer) (eof bool, err error) {
	for {
		chunk, err := reader.ReadSlice('\n')
		if p.cfg.MaxLineSize > 0 && buf.Len()+len(chunk) > p.cfg.MaxLineSize {
			return false, ErrLineTooLong
		}
		switch {
		case err == nil:
			buf.Write(chunk[:len(chunk)-1])
			return false, nil
		case errors.Is(err, bufio.ErrBufferFull):
			buf.Write(chunk)
		case errors.Is(err, io.EOF):
			buf.Write(chunk)
			return true, nil
		default:
			return false, err
		}
	}
}
