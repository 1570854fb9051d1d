// Package reader polls a local NFC reader and publishes tag changes the way
// the networked readers do.
package reader

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dotside-studios/nfc-juke/bus"
	"github.com/dotside-studios/nfc-juke/logging"
	"github.com/dotside-studios/nfc-juke/metrics"
)

const (
	// DefaultPollInterval matches the reader firmware's read timeout.
	DefaultPollInterval = 100 * time.Millisecond
	// VerifyReads is how many further identical reads confirm a change.
	VerifyReads = 3
	// Missing is reported when the card is taken away.
	Missing = "None"

	errorPause = time.Second
)

// Target is a card in the field.
type Target struct {
	UID    []byte
	Family string // e.g. "mifare-classic"; empty if unknown
}

// Scanner reads the card currently in the field. A nil target means no card.
type Scanner interface {
	Scan(ctx context.Context) (*Target, error)
	Close() error
}

// Publisher sends a payload to a sub-topic of the reader prefix.
type Publisher interface {
	Publish(ctx context.Context, sub string, payload []byte) error
}

// FormatUID renders a UID as lowercase dash-separated hex, e.g. 04-a1-b2-c3.
func FormatUID(uid []byte) string {
	parts := make([]string, len(uid))
	for i, b := range uid {
		parts[i] = hex.EncodeToString([]byte{b})
	}
	return strings.Join(parts, "-")
}

// Debouncer confirms a reading only after it repeats, so a card brushing the
// antenna does not trigger playback.
type Debouncer struct {
	last  string
	count int
}

// Observe feeds one reading and returns it when it is confirmed. A confirmed
// reading is reported once until the reading changes again.
func (d *Debouncer) Observe(reading string) (string, bool) {
	if reading != d.last {
		d.last = reading
		d.count = 0
		return "", false
	}
	if d.count > VerifyReads {
		return "", false
	}
	d.count++
	if d.count == VerifyReads {
		d.count = VerifyReads + 1
		return reading, true
	}
	return "", false
}

// Rearm makes the next identical reading report again. Used when a report
// could not be delivered.
func (d *Debouncer) Rearm() {
	if d.count > VerifyReads {
		d.count = VerifyReads - 1
	}
}

// Reader polls a Scanner and publishes confirmed changes to <prefix>/tag.
type Reader struct {
	scanner   Scanner
	publisher Publisher
	interval  time.Duration
	debounce  Debouncer
	logger    zerolog.Logger
}

// New creates a Reader.
func New(scanner Scanner, publisher Publisher) *Reader {
	return &Reader{
		scanner:   scanner,
		publisher: publisher,
		interval:  DefaultPollInterval,
		logger:    logging.WithComponent("reader"),
	}
}

// SetInterval overrides DefaultPollInterval.
func (r *Reader) SetInterval(d time.Duration) {
	if d > 0 {
		r.interval = d
	}
}

// Run polls until ctx is cancelled, then closes the scanner.
func (r *Reader) Run(ctx context.Context) error {
	defer func() {
		if err := r.scanner.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("closing reader")
		}
	}()
	r.logger.Info().Dur("interval", r.interval).Msg("local reader started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("local reader stopped")
			return nil
		case <-ticker.C:
		}

		if err := r.poll(ctx); err != nil {
			r.logger.Error().Err(err).Msg("reader poll failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(errorPause):
			}
		}
	}
}

func (r *Reader) poll(ctx context.Context) error {
	target, err := r.scanner.Scan(ctx)
	if err != nil {
		return err
	}

	reading := Missing
	if target != nil && len(target.UID) > 0 {
		reading = FormatUID(target.UID)
	}

	report, ok := r.debounce.Observe(reading)
	if !ok {
		return nil
	}

	event := r.logger.Info().Str("tag", report)
	if target != nil && target.Family != "" {
		event = event.Str("family", target.Family)
	}
	event.Msg("tag changed")

	if err := r.publisher.Publish(ctx, bus.TagTopic, []byte(report)); err != nil {
		r.debounce.Rearm()
		return fmt.Errorf("publish tag %s: %w", report, err)
	}
	metrics.IncReaderReport()
	return nil
}
