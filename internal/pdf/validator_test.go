package pdf

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/ned1313/pdf-mirror/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidator(opts ...Option) *Validator {
	return NewValidator(DefaultPolicy(), opts...)
}

func TestValidate_ValidDocument(t *testing.T) {
	v := newTestValidator()
	data := testutils.BuildPDF(testutils.PDFOptions{Version: "1.7", Pages: 3})

	result := v.Validate(data)
	require.True(t, result.IsValid, result.Error)

	assert.Empty(t, result.Error)
	assert.Equal(t, FailureNone, result.Failure)
	assert.Equal(t, "1.7", result.PDFVersion)
	assert.Equal(t, 3, result.PageCount)
	assert.False(t, result.IsEncrypted)
	assert.Greater(t, result.FileSizeMB, 0.0)
	assert.Greater(t, int64(result.Elapsed), int64(-1))

	assert.Equal(t, Checks{
		NotEmpty:        true,
		SizeWithinLimit: true,
		Header:          true,
		XRef:            true,
		Trailer:         true,
		ObjectsBalanced: true,
		EOFMarker:       true,
		PageCount:       true,
		Encryption:      true,
		Version:         true,
	}, result.Checks)
}

func TestValidate_DistinctStructuralFailures(t *testing.T) {
	valid := testutils.MinimalPDF("structural")

	tests := []struct {
		name    string
		data    []byte
		class   FailureClass
		message string
	}{
		{
			name:    "empty",
			data:    nil,
			class:   FailureEmpty,
			message: "empty content",
		},
		{
			name:    "missing header",
			data:    bytes.Replace(valid, []byte("%PDF-1.4"), []byte("%XYZ-1.4"), 1),
			class:   FailureHeader,
			message: "missing %PDF-<major>.<minor> header",
		},
		{
			name:    "missing xref",
			data:    bytes.Replace(valid, []byte("xref\n0"), []byte("xtab\n0"), 1),
			class:   FailureXRef,
			message: "missing xref table",
		},
		{
			name:    "missing trailer",
			data:    bytes.Replace(valid, []byte("trailer"), []byte("tailer"), 1),
			class:   FailureTrailer,
			message: "missing trailer",
		},
		{
			name:    "mismatched obj count",
			data:    bytes.Replace(valid, []byte("endobj\n"), []byte("\n"), 1),
			class:   FailureObjects,
			message: "mismatched obj/endobj count (4 obj, 3 endobj)",
		},
		{
			name:    "missing eof",
			data:    bytes.Replace(valid, []byte("%%EOF"), []byte(""), 1),
			class:   FailureEOF,
			message: "missing %%EOF marker",
		},
	}

	v := newTestValidator()
	seen := make(map[string]bool)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.Validate(tt.data)
			assert.False(t, result.IsValid)
			assert.Equal(t, tt.class, result.Failure)
			assert.Contains(t, result.Error, tt.message)
			assert.False(t, seen[result.Error], "message %q reused", result.Error)
			seen[result.Error] = true
		})
	}
}

func TestValidate_ShortCircuitsOnFirstFailure(t *testing.T) {
	v := newTestValidator()

	result := v.Validate([]byte("%PDF-1.4\nno structure here"))
	assert.Equal(t, FailureXRef, result.Failure)
	assert.True(t, result.Checks.Header)
	assert.False(t, result.Checks.Trailer)
	assert.False(t, result.Checks.EOFMarker)
	assert.Equal(t, "1.4", result.PDFVersion)
}

func TestValidate_TrailingWhitespaceAfterEOF(t *testing.T) {
	v := newTestValidator()
	data := append(testutils.MinimalPDF("ws"), []byte("\r\n  \n\x00")...)

	result := v.Validate(data)
	assert.True(t, result.IsValid, result.Error)
}

func TestValidate_UnbalancedDictionary(t *testing.T) {
	v := newTestValidator()
	data := bytes.Replace(testutils.MinimalPDF("dict"),
		[]byte("<< /Type /Catalog /Pages 2 0 R >>"),
		[]byte("<< /Type /Catalog /Pages 2 0 R"), 1)

	result := v.Validate(data)
	assert.False(t, result.IsValid)
	assert.Equal(t, FailureObjects, result.Failure)
	assert.Contains(t, result.Error, "unbalanced dictionary delimiters in object 1 0")
}

func TestValidate_StreamContentIgnoredForDelimiters(t *testing.T) {
	v := newTestValidator()
	data := bytes.Replace(testutils.MinimalPDF("stream"),
		[]byte("stream\n\nendstream"),
		[]byte("stream\n<< << >>>> >> <<\nendstream"), 1)

	result := v.Validate(data)
	assert.True(t, result.IsValid, result.Error)
}

func TestValidate_StringsIgnoredForDelimiters(t *testing.T) {
	v := newTestValidator()
	data := bytes.Replace(testutils.MinimalPDF("strings"),
		[]byte("<< /Type /Catalog /Pages 2 0 R >>"),
		[]byte("<< /Type /Catalog /Pages 2 0 R /Title (a << b \\) c) /ID <4142> >>"), 1)

	result := v.Validate(data)
	assert.True(t, result.IsValid, result.Error)
}

func TestValidate_KeywordsInStringsAndComments(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "endobj in literal string",
			data: bytes.Replace(testutils.MinimalPDF("keywords"),
				[]byte("<< /Type /Catalog /Pages 2 0 R >>"),
				[]byte("<< /Type /Catalog /Pages 2 0 R /Lang (see endobj) >>"), 1),
		},
		{
			name: "obj header in literal string",
			data: bytes.Replace(testutils.MinimalPDF("keywords"),
				[]byte("<< /Type /Catalog /Pages 2 0 R >>"),
				[]byte("<< /Type /Catalog /Pages 2 0 R /Title (7 0 obj \\(nested\\) >>) >>"), 1),
		},
		{
			name: "keywords in comment",
			data: testutils.MinimalPDF("endobj 9 0 obj (unclosed"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.Validate(tt.data)
			assert.True(t, result.IsValid, result.Error)
			assert.True(t, result.Checks.ObjectsBalanced)
			assert.Equal(t, 1, result.PageCount)
		})
	}
}

func TestScrub_KeepsOffsets(t *testing.T) {
	data := []byte("1 0 obj\n<< /T (endobj) >> % endobj\nendobj\n")

	clean := scrub(data)
	require.Len(t, clean, len(data))
	assert.Equal(t, 1, bytes.Count(clean, []byte("endobj")))
	assert.Equal(t, len(data)-len("endobj\n"), bytes.Index(clean, []byte("endobj")))
	assert.Equal(t, "1 0 obj", string(clean[:7]))
}

func TestValidate_PageCountFallback(t *testing.T) {
	v := newTestValidator()
	data := bytes.Replace(testutils.BuildPDF(testutils.PDFOptions{Pages: 2}),
		[]byte("/Count 2"), []byte(""), 1)

	result := v.Validate(data)
	assert.True(t, result.IsValid, result.Error)
	assert.Equal(t, 2, result.PageCount)
}

func TestValidate_PolicyViolations(t *testing.T) {
	tests := []struct {
		name    string
		policy  func(p *Policy)
		opts    testutils.PDFOptions
		message string
		check   func(c Checks) bool
	}{
		{
			name:    "encrypted rejected",
			policy:  func(p *Policy) { p.AllowEncrypted = false },
			opts:    testutils.PDFOptions{Encrypted: true},
			message: "encrypted PDFs are not accepted",
			check:   func(c Checks) bool { return c.Encryption },
		},
		{
			name:    "version not allowed",
			policy:  func(p *Policy) { p.AllowedVersions = []string{"1.7"} },
			opts:    testutils.PDFOptions{Version: "1.3"},
			message: "PDF version 1.3 is not allowed",
			check:   func(c Checks) bool { return c.Version },
		},
		{
			name:    "too few pages",
			policy:  func(p *Policy) { p.MinPageCount = 5 },
			opts:    testutils.PDFOptions{Pages: 2},
			message: "page count 2 below minimum 5",
			check:   func(c Checks) bool { return c.PageCount },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := DefaultPolicy()
			tt.policy(&policy)
			v := NewValidator(policy)

			result := v.Validate(testutils.BuildPDF(tt.opts))
			assert.False(t, result.IsValid)
			assert.Equal(t, FailurePolicy, result.Failure)
			assert.Equal(t, tt.message, result.Error)
			assert.False(t, tt.check(result.Checks))
			assert.True(t, result.Checks.EOFMarker, "structural checks should have passed")
		})
	}
}

func TestValidate_EncryptedAllowed(t *testing.T) {
	policy := DefaultPolicy()
	policy.AllowEncrypted = true
	v := NewValidator(policy)

	result := v.Validate(testutils.BuildPDF(testutils.PDFOptions{Encrypted: true}))
	assert.True(t, result.IsValid, result.Error)
	assert.True(t, result.IsEncrypted)
}

func TestValidate_SizeLimit(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxSizeMB = 0.001
	v := NewValidator(policy)

	result := v.Validate(testutils.BuildPDF(testutils.PDFOptions{Padding: 4096}))
	assert.False(t, result.IsValid)
	assert.Equal(t, FailureSize, result.Failure)
	assert.True(t, strings.HasPrefix(result.Error, "content exceeds size limit"))
	assert.False(t, result.Checks.Header)
}

func TestValidate_GarbageNeverPanics(t *testing.T) {
	v := newTestValidator()
	inputs := [][]byte{
		{0x00},
		[]byte("%PDF-"),
		[]byte("%PDF-1.4 xref trailer %%EOF"),
		[]byte("%PDF-1.4\n1 0 obj\n<< (unterminated\nendobj\nxref\n0 1\n0000000000 65535 f\ntrailer\n%%EOF"),
		bytes.Repeat([]byte("<"), 1024),
	}

	for _, in := range inputs {
		assert.NotPanics(t, func() {
			result := v.Validate(in)
			assert.False(t, result.IsValid)
			assert.NotEmpty(t, result.Error)
		})
	}
}

func TestValidateWithRepair_NoRepairer(t *testing.T) {
	v := newTestValidator()
	data := bytes.Replace(testutils.MinimalPDF("repair"), []byte("%%EOF"), nil, 1)

	result := v.ValidateWithRepair(data)
	assert.False(t, result.IsValid)
	assert.True(t, result.RepairAttempted)
	assert.False(t, result.RepairSuccessful)
	assert.Equal(t, FailureEOF, result.Failure)
}

func TestValidateWithRepair_RegisteredRepairer(t *testing.T) {
	appendEOF := func(data []byte) ([]byte, error) {
		return append(append([]byte(nil), data...), []byte("%%EOF\n")...), nil
	}
	v := newTestValidator(WithRepairer(FailureEOF, appendEOF))
	data := bytes.Replace(testutils.MinimalPDF("repair"), []byte("%%EOF"), nil, 1)

	result := v.ValidateWithRepair(data)
	assert.True(t, result.IsValid, result.Error)
	assert.True(t, result.RepairAttempted)
	assert.True(t, result.RepairSuccessful)
	assert.True(t, bytes.HasSuffix(result.RepairedContent, []byte("%%EOF\n")))
}

func TestValidateWithRepair_FailingRepairer(t *testing.T) {
	broken := func(data []byte) ([]byte, error) {
		return nil, errors.New("cannot repair")
	}
	panicky := func(data []byte) ([]byte, error) {
		panic("boom")
	}

	for _, fn := range []RepairFunc{broken, panicky} {
		v := newTestValidator(WithRepairer(FailureEOF, fn))
		data := bytes.Replace(testutils.MinimalPDF("repair"), []byte("%%EOF"), nil, 1)

		result := v.ValidateWithRepair(data)
		assert.False(t, result.IsValid)
		assert.True(t, result.RepairAttempted)
		assert.False(t, result.RepairSuccessful)
	}
}

func TestValidateWithRepair_ValidInputUntouched(t *testing.T) {
	v := newTestValidator()

	result := v.ValidateWithRepair(testutils.MinimalPDF("fine"))
	assert.True(t, result.IsValid)
	assert.False(t, result.RepairAttempted)
}

func TestValidateBatch_PreservesOrder(t *testing.T) {
	v := newTestValidator()
	items := [][]byte{
		testutils.BuildPDF(testutils.PDFOptions{Pages: 1}),
		nil,
		testutils.BuildPDF(testutils.PDFOptions{Pages: 2}),
		[]byte("not a pdf"),
	}

	results := v.ValidateBatch(items)
	require.Len(t, results, 4)

	assert.True(t, results[0].IsValid)
	assert.Equal(t, 1, results[0].PageCount)
	assert.Equal(t, FailureEmpty, results[1].Failure)
	assert.True(t, results[2].IsValid)
	assert.Equal(t, 2, results[2].PageCount)
	assert.Equal(t, FailureHeader, results[3].Failure)
}

func TestHasPDFMagic(t *testing.T) {
	assert.True(t, HasPDFMagic([]byte("%PDF-1.4")))
	assert.False(t, HasPDFMagic([]byte("<html>")))
	assert.False(t, HasPDFMagic(nil))
}
