package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"hurst-trader/models"
)

// Store persists settled trades.
type Store interface {
	Insert(ctx context.Context, rec models.TradeRecord) error
	// Since returns trades settled at or after from, oldest first.
	Since(ctx context.Context, from time.Time) ([]models.TradeRecord, error)
	Close() error
}

// FileStore appends trades as JSON lines.
type FileStore struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

// OpenFileStore creates the parent directory and opens path for appending.
func OpenFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger file: %w", err)
	}
	return &FileStore{path: path, f: f}, nil
}

func (s *FileStore) Insert(_ context.Context, rec models.TradeRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode trade %s: %w", rec.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return os.ErrClosed
	}
	if _, err := s.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append trade %s: %w", rec.ID, err)
	}
	return nil
}

func (s *FileStore) Since(_ context.Context, from time.Time) ([]models.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ReadFile(s.path, from)
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// ReadFile loads trades from a JSON lines ledger. Malformed lines are skipped.
func ReadFile(path string, from time.Time) ([]models.TradeRecord, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []models.TradeRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var rec models.TradeRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		if rec.Timestamp.Before(from) {
			continue
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return out, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Summary aggregates a set of trades.
type Summary struct {
	Trades      int
	Wins        int
	Losses      int
	GrossWin    float64
	GrossLoss   float64
	Net         float64
	WinRate     float64
	MaxDrawdown float64
}

// Summarize totals profits with decimal arithmetic; drawdown is measured on the running net.
func Summarize(records []models.TradeRecord) Summary {
	var s Summary
	gw, gl, net, peak := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	dd := decimal.Zero
	for _, r := range records {
		p := decimal.NewFromFloat(r.Profit)
		s.Trades++
		if r.IsWin {
			s.Wins++
			gw = gw.Add(p)
		} else {
			s.Losses++
			gl = gl.Add(p)
		}
		net = net.Add(p)
		if net.GreaterThan(peak) {
			peak = net
		}
		if d := peak.Sub(net); d.GreaterThan(dd) {
			dd = d
		}
	}
	s.GrossWin = gw.Round(2).InexactFloat64()
	s.GrossLoss = gl.Round(2).InexactFloat64()
	s.Net = net.Round(2).InexactFloat64()
	s.MaxDrawdown = dd.Round(2).InexactFloat64()
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades)
	}
	return s
}
