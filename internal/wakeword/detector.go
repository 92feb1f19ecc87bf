// Package wakeword watches the capture stream for a spoken wake phrase.
//
// The detector feeds captured chunks to a streaming recognizer and checks
// each finalized utterance for the wake phrase: the phrase must appear in
// the utterance and the fraction of wake tokens present among the
// recognized tokens must reach the confidence threshold. Detections fire a
// callback and never stop the listening session.
package wakeword

import (
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"github.com/MrWong99/auricle/pkg/audio"
)

const defaultThreshold = 0.6

// Recognizer turns PCM audio into finalized utterances. Accept feeds one
// chunk of 16-bit little-endian mono PCM; final reports that text is a
// completed utterance rather than a partial. Any recognizer from
// pkg/provider/stt that buffers across silence satisfies it.
type Recognizer interface {
	Accept(pcm []byte) (text string, final bool, err error)
	Reset()
}

// Callback receives the recognized utterance that contained the wake
// phrase.
type Callback func(utterance string)

// Detector is the wake-phrase state machine. StartListening, StopListening,
// Reset and LastDetected are safe from any goroutine; ProcessChunk is meant
// to be called from the single capture loop.
type Detector struct {
	recognizer Recognizer
	phrase     string
	tokens     []string

	mu        sync.Mutex
	threshold float64
	phonetic  bool
	listening bool
	callback  Callback
	last      string
}

// Option configures a [Detector] during construction.
type Option func(*Detector)

// WithThreshold sets the minimum token-overlap confidence for a detection.
// The default is 0.6.
func WithThreshold(threshold float64) Option {
	return func(d *Detector) {
		if threshold > 0 {
			d.threshold = threshold
		}
	}
}

// WithPhoneticAssist lets wake tokens match recognized tokens that sound
// alike (Double Metaphone overlap or Jaro-Winkler >= 0.85) instead of only
// spelling-identical ones. A phrase whose every token is phonetically
// present passes the appearance check even when the exact spelling never
// occurs.
func WithPhoneticAssist() Option {
	return func(d *Detector) {
		d.phonetic = true
	}
}

// New creates a detector for phrase. Matching is case-insensitive.
func New(recognizer Recognizer, phrase string, opts ...Option) *Detector {
	d := &Detector{
		recognizer: recognizer,
		phrase:     strings.ToLower(strings.TrimSpace(phrase)),
		threshold:  defaultThreshold,
	}
	d.tokens = tokenize(d.phrase)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// StartListening begins watching for the wake phrase. cb fires once per
// detection, outside the detector's lock. Recognizer state from a previous
// session is discarded.
func (d *Detector) StartListening(cb Callback) {
	d.mu.Lock()
	d.listening = true
	d.callback = cb
	d.last = ""
	d.mu.Unlock()
	d.recognizer.Reset()
	slog.Debug("wakeword: listening", "phrase", d.phrase)
}

// StopListening returns the detector to idle. Chunks fed while idle are
// ignored.
func (d *Detector) StopListening() {
	d.mu.Lock()
	d.listening = false
	d.callback = nil
	d.mu.Unlock()
}

// Reset discards recognizer state and the last detection. The listening
// state is unchanged.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.last = ""
	d.mu.Unlock()
	d.recognizer.Reset()
}

// Listening reports whether the detector is watching for the wake phrase.
func (d *Detector) Listening() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listening
}

// LastDetected returns the most recent utterance that triggered a
// detection, or "" when there has been none since the last reset.
func (d *Detector) LastDetected() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Tune adjusts the confidence threshold and phonetic assist of a running
// detector, typically on a config reload. A threshold <= 0 keeps the
// current value. The wake phrase itself cannot be changed; the token list
// is fixed at construction.
func (d *Detector) Tune(threshold float64, phonetic bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if threshold > 0 {
		d.threshold = threshold
	}
	d.phonetic = phonetic
}

// ProcessChunk feeds one captured clip to the recognizer and reports
// whether it completed an utterance containing the wake phrase. Chunks fed
// while not listening are ignored. Recognizer errors are logged and count
// as "not detected"; they do not stop the session.
func (d *Detector) ProcessChunk(clip audio.Clip) bool {
	d.mu.Lock()
	listening := d.listening
	threshold := d.threshold
	phonetic := d.phonetic
	d.mu.Unlock()
	if !listening || clip.Empty() {
		return false
	}

	text, final, err := d.recognizer.Accept(audio.Float32ToPCM16(clip.Samples))
	if err != nil {
		slog.Warn("wakeword: recognizer error", "err", err)
		return false
	}
	if !final || strings.TrimSpace(text) == "" {
		return false
	}

	utterance := strings.ToLower(strings.TrimSpace(text))
	confidence, ok := d.match(utterance, threshold, phonetic)
	if !ok {
		slog.Debug("wakeword: utterance without wake phrase",
			"utterance", utterance, "confidence", confidence)
		return false
	}

	d.mu.Lock()
	// StopListening may have raced the recognizer call.
	if !d.listening {
		d.mu.Unlock()
		return false
	}
	d.last = utterance
	cb := d.callback
	d.mu.Unlock()

	slog.Info("wakeword: wake phrase detected",
		"utterance", utterance, "confidence", confidence)
	if cb != nil {
		fire(cb, utterance)
	}
	return true
}

// match scores utterance against the wake phrase. Confidence is the
// fraction of wake tokens present among the utterance's tokens; a
// detection additionally requires the phrase to appear in the utterance.
func (d *Detector) match(utterance string, threshold float64, phonetic bool) (float64, bool) {
	if len(d.tokens) == 0 {
		return 0, false
	}

	words := tokenize(utterance)
	present := 0
	for _, token := range d.tokens {
		if tokenPresent(token, words, phonetic) {
			present++
		}
	}
	confidence := float64(present) / float64(len(d.tokens))

	appears := strings.Contains(utterance, d.phrase)
	if phonetic && !appears {
		appears = present == len(d.tokens)
	}
	return confidence, appears && confidence >= threshold
}

// fire invokes the callback, recovering panics so a misbehaving handler
// cannot take down the capture loop.
func fire(cb Callback, utterance string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("wakeword: detection callback panicked", "panic", r)
		}
	}()
	cb(utterance)
}

// tokenize splits text into letter/digit runs, discarding punctuation.
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func tokenPresent(want string, words []string, phonetic bool) bool {
	for _, w := range words {
		if w == want {
			return true
		}
	}
	if !phonetic {
		return false
	}
	for _, w := range words {
		if soundsAlike(want, w) {
			return true
		}
	}
	return false
}
