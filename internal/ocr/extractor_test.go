package ocr

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner serves canned tesseract output; the tsv arg selects the stream.
type fakeRunner struct {
	text    string
	tsv     string
	err     error
	tsvErr  error
	calls   []string
	lastCmd string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.lastCmd = name
	f.calls = append(f.calls, strings.Join(args, " "))
	if len(args) > 0 && args[len(args)-1] == "tsv" {
		return []byte(f.tsv), nil, f.tsvErr
	}
	if f.err != nil {
		return nil, []byte("Error in pixReadStream"), f.err
	}
	return []byte(f.text), nil, nil
}

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"5\t1\t1\t1\t1\t1\t10\t10\t80\t20\t91.5\tTOTAL\n" +
	"5\t1\t1\t1\t1\t2\t95\t10\t80\t20\t88.5\t5,000.00\n" +
	"5\t1\t1\t1\t2\t1\t10\t35\t80\t20\t-1\t\n"

func TestExtractUsesTSVConfidence(t *testing.T) {
	f := &fakeRunner{text: sampleReceipt, tsv: sampleTSV}
	e := NewExtractor(Config{EnableTSVConfidence: true}, nil)
	e.runner = f

	ext := e.Extract(context.Background(), "/tmp/receipt.png", 0)

	require.True(t, ext.HasTotal())
	assert.Equal(t, 5000.0, ext.TotalAmount)
	// 0.7*90 (tsv mean) + 0.3*80 (heuristic)
	assert.InDelta(t, 87.0, ext.Confidence, 0.5)
	assert.Len(t, f.calls, 2)
	assert.Equal(t, "tesseract", f.lastCmd)
}

func TestExtractWithoutTSV(t *testing.T) {
	f := &fakeRunner{text: sampleReceipt}
	e := NewExtractor(Config{}, nil)
	e.runner = f

	ext := e.Extract(context.Background(), "/tmp/receipt.png", 0)

	assert.InDelta(t, 80.0, ext.Confidence, 0.5)
	assert.Len(t, f.calls, 1, "TSV pass disabled by default")
}

func TestExtractOCRFailureDegradesToEmpty(t *testing.T) {
	f := &fakeRunner{err: errors.New("exit status 1")}
	e := NewExtractor(Config{}, nil)
	e.runner = f

	ext := e.Extract(context.Background(), "/tmp/missing.png", 0)

	assert.Zero(t, ext.Confidence)
	assert.False(t, ext.HasTotal())
	assert.Empty(t, ext.MerchantName)
}

func TestExtractTSVFailureIsNonFatal(t *testing.T) {
	f := &fakeRunner{text: sampleReceipt, tsvErr: errors.New("exit status 1")}
	e := NewExtractor(Config{EnableTSVConfidence: true}, nil)
	e.runner = f

	ext := e.Extract(context.Background(), "/tmp/receipt.png", 0)

	// heuristic-only score
	assert.InDelta(t, 80.0, ext.Confidence, 0.5)
}

func TestExtractPassesTesseractFlags(t *testing.T) {
	f := &fakeRunner{text: sampleReceipt}
	e := NewExtractor(Config{Tesseract: "/opt/bin/tesseract", TesseractLang: "eng+swa", PSM: 6, OEM: 1}, nil)
	e.runner = f

	e.Extract(context.Background(), "/tmp/receipt.png", 0)

	require.Len(t, f.calls, 1)
	assert.Equal(t, "/opt/bin/tesseract", f.lastCmd)
	assert.Contains(t, f.calls[0], "-l eng+swa")
	assert.Contains(t, f.calls[0], "--psm 6")
	assert.Contains(t, f.calls[0], "--oem 1")
}
