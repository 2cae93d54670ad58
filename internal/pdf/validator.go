package pdf

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const bytesPerMB = 1024 * 1024

var (
	headerRe    = regexp.MustCompile(`^%PDF-(\d+)\.(\d+)`)
	xrefRe      = regexp.MustCompile(`(?:^|[^A-Za-z])xref\s+\d+\s+\d+\s+\d{1,10}\s+\d{1,5}\s+[nf]`)
	objRe       = regexp.MustCompile(`(\d+)\s+(\d+)\s+obj\b`)
	endobjRe    = regexp.MustCompile(`\bendobj\b`)
	streamRe    = regexp.MustCompile(`(?s)stream\r?\n.*?endstream`)
	pagesTypeRe = regexp.MustCompile(`/Type\s*/Pages\b`)
	countRe     = regexp.MustCompile(`/Count\s+(\d+)`)
	pageTypeRe  = regexp.MustCompile(`/Type\s*/Page\b`)
)

var (
	magic     = []byte("%PDF-")
	eofMarker = []byte("%%EOF")
	trailerKw = []byte("trailer")
	encryptKw = []byte("/Encrypt")
)

// RepairFunc attempts to repair a document rejected for a specific failure class.
// It returns the repaired bytes or an error when the document cannot be repaired.
type RepairFunc func(data []byte) ([]byte, error)

// Option configures a Validator
type Option func(*Validator)

// WithRepairer registers a repair function for a failure class
func WithRepairer(class FailureClass, fn RepairFunc) Option {
	return func(v *Validator) {
		v.repairers[class] = fn
	}
}

// Validator checks PDF documents against structural rules and a Policy.
// It holds no mutable state after construction and is safe for concurrent use.
type Validator struct {
	policy    Policy
	repairers map[FailureClass]RepairFunc
}

// NewValidator creates a validator with the given policy
func NewValidator(policy Policy, opts ...Option) *Validator {
	v := &Validator{
		policy:    policy,
		repairers: make(map[FailureClass]RepairFunc),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Policy returns the policy the validator enforces
func (v *Validator) Policy() Policy {
	return v.policy
}

// HasPDFMagic reports whether data starts with the %PDF- magic bytes
func HasPDFMagic(data []byte) bool {
	return bytes.HasPrefix(data, magic)
}

// Validate checks data and returns a result describing the outcome.
// It never panics on malformed input.
func (v *Validator) Validate(data []byte) (result *ValidationResult) {
	start := time.Now()
	result = &ValidationResult{
		FileSizeMB: float64(len(data)) / bytesPerMB,
	}

	defer func() {
		if r := recover(); r != nil {
			result.fail(FailureInternal, fmt.Sprintf("validation failed: %v", r))
		}
		result.Elapsed = time.Since(start)
	}()

	v.validate(data, result)
	return result
}

// ValidateWithRepair validates data and, when it is invalid, attempts a repair
// using the repairer registered for the failure class. Without a matching
// repairer the result reports an attempted but unsuccessful repair.
func (v *Validator) ValidateWithRepair(data []byte) *ValidationResult {
	result := v.Validate(data)
	if result.IsValid {
		return result
	}

	result.RepairAttempted = true

	repair, ok := v.repairers[result.Failure]
	if !ok {
		return result
	}

	repaired, err := safeRepair(repair, data)
	if err != nil {
		return result
	}

	retry := v.Validate(repaired)
	if !retry.IsValid {
		return result
	}

	retry.RepairAttempted = true
	retry.RepairSuccessful = true
	retry.RepairedContent = repaired
	retry.Elapsed += result.Elapsed
	return retry
}

// ValidateBatch validates every item and returns results in input order
func (v *Validator) ValidateBatch(items [][]byte) []*ValidationResult {
	results := make([]*ValidationResult, len(items))
	for i, item := range items {
		results[i] = v.Validate(item)
	}
	return results
}

func (v *Validator) validate(data []byte, r *ValidationResult) {
	if len(data) == 0 {
		r.fail(FailureEmpty, "empty content")
		return
	}
	r.Checks.NotEmpty = true

	if limit := v.policy.maxBytes(); limit > 0 && int64(len(data)) > limit {
		r.fail(FailureSize, fmt.Sprintf("content exceeds size limit: %.2f MB > %.2f MB",
			r.FileSizeMB, v.policy.MaxSizeMB))
		return
	}
	r.Checks.SizeWithinLimit = true

	m := headerRe.FindSubmatch(data)
	if m == nil {
		r.fail(FailureHeader, "PDF structure invalid: missing %PDF-<major>.<minor> header")
		return
	}
	r.Checks.Header = true
	r.PDFVersion = string(m[1]) + "." + string(m[2])

	if !xrefRe.Match(data) {
		r.fail(FailureXRef, "PDF structure invalid: missing xref table")
		return
	}
	r.Checks.XRef = true

	if !bytes.Contains(data, trailerKw) {
		r.fail(FailureTrailer, "PDF structure invalid: missing trailer")
		return
	}
	r.Checks.Trailer = true

	bodies, err := objectBodies(data)
	if err != nil {
		r.fail(FailureObjects, "PDF structure invalid: "+err.Error())
		return
	}
	r.Checks.ObjectsBalanced = true

	if !bytes.HasSuffix(bytes.TrimRight(data, " \t\r\n\f\x00"), eofMarker) {
		r.fail(FailureEOF, "PDF structure invalid: missing %%EOF marker")
		return
	}
	r.Checks.EOFMarker = true

	r.PageCount = pageCount(data, bodies)
	r.IsEncrypted = bytes.Contains(data, encryptKw)

	v.applyPolicy(r)
}

// applyPolicy enforces the configured acceptance rules on a structurally valid document
func (v *Validator) applyPolicy(r *ValidationResult) {
	r.Checks.PageCount = r.PageCount >= v.policy.MinPageCount
	r.Checks.Encryption = v.policy.AllowEncrypted || !r.IsEncrypted
	r.Checks.Version = v.policy.versionAllowed(r.PDFVersion)

	switch {
	case !r.Checks.PageCount:
		r.fail(FailurePolicy, fmt.Sprintf("page count %d below minimum %d", r.PageCount, v.policy.MinPageCount))
	case !r.Checks.Encryption:
		r.fail(FailurePolicy, "encrypted PDFs are not accepted")
	case !r.Checks.Version:
		r.fail(FailurePolicy, fmt.Sprintf("PDF version %s is not allowed", r.PDFVersion))
	default:
		r.IsValid = true
	}
}

// objectBody is the content between an "N G obj" header and its endobj
type objectBody struct {
	number     string
	generation string
	content    []byte
}

// objectBodies pairs every object header with its endobj and checks that the
// dictionary delimiters inside each object are balanced. Keywords are matched
// on a scrubbed copy so strings, comments and streams cannot fake them.
func objectBodies(data []byte) ([]objectBody, error) {
	clean := scrub(data)
	headers := objRe.FindAllSubmatchIndex(clean, -1)
	ends := len(endobjRe.FindAllIndex(clean, -1))
	if len(headers) != ends {
		return nil, fmt.Errorf("mismatched obj/endobj count (%d obj, %d endobj)", len(headers), ends)
	}

	bodies := make([]objectBody, 0, len(headers))
	for _, h := range headers {
		number := string(clean[h[2]:h[3]])
		generation := string(clean[h[4]:h[5]])

		loc := endobjRe.FindIndex(clean[h[1]:])
		if loc == nil {
			return nil, fmt.Errorf("object %s %s has no endobj", number, generation)
		}
		start, end := h[1], h[1]+loc[0]

		if !delimitersBalanced(clean[start:end]) {
			return nil, fmt.Errorf("unbalanced dictionary delimiters in object %s %s", number, generation)
		}
		bodies = append(bodies, objectBody{number: number, generation: generation, content: data[start:end]})
	}
	return bodies, nil
}

// scrub returns a copy of data with stream data, literal strings and comments
// blanked to spaces. Offsets are unchanged. An unterminated string blanks the
// rest of the file.
func scrub(data []byte) []byte {
	out := bytes.Clone(data)
	for _, loc := range streamRe.FindAllIndex(out, -1) {
		blank(out[loc[0]:loc[1]])
	}

	for i := 0; i < len(out); {
		n := 0
		switch out[i] {
		case '%':
			n = bytes.IndexAny(out[i:], "\r\n")
		case '(':
			n = skipLiteralString(out[i:])
		default:
			i++
			continue
		}
		if n < 0 {
			n = len(out) - i
		}
		blank(out[i : i+n])
		i += n
	}
	return out
}

func blank(b []byte) {
	for i := range b {
		b[i] = ' '
	}
}

// delimitersBalanced reports whether << and >> pair up, skipping literal and hex strings
func delimitersBalanced(b []byte) bool {
	depth := 0
	for i := 0; i < len(b); {
		c := b[i]
		var next byte
		if i+1 < len(b) {
			next = b[i+1]
		}

		switch {
		case c == '<' && next == '<':
			depth++
			i += 2
		case c == '>' && next == '>':
			depth--
			if depth < 0 {
				return false
			}
			i += 2
		case c == '<':
			j := bytes.IndexByte(b[i+1:], '>')
			if j < 0 {
				return false
			}
			i += j + 2
		case c == '(':
			n := skipLiteralString(b[i:])
			if n < 0 {
				return false
			}
			i += n
		default:
			i++
		}
	}
	return depth == 0
}

// skipLiteralString returns the length of the literal string at the start of b,
// honouring nested parentheses and backslash escapes, or -1 if it never closes
func skipLiteralString(b []byte) int {
	depth := 0
	for i := 0; i < len(b); i++ {
		switch b[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// pageCount reads /Count from the page tree root, falling back to counting page objects
func pageCount(data []byte, bodies []objectBody) int {
	for _, body := range bodies {
		if !pagesTypeRe.Match(body.content) {
			continue
		}
		if m := countRe.FindSubmatch(body.content); m != nil {
			if n, err := strconv.Atoi(string(m[1])); err == nil {
				return n
			}
		}
	}
	return len(pageTypeRe.FindAllIndex(data, -1))
}

// safeRepair runs a repair function, converting a panic into an error
func safeRepair(fn RepairFunc, data []byte) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("repair panicked: %v", r)
		}
	}()
	return fn(data)
}
