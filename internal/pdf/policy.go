package pdf

// Policy holds the acceptance rules applied after structural checks pass
type Policy struct {
	// MaxSizeMB is the largest document accepted, in megabytes
	MaxSizeMB float64

	// MinPageCount is the minimum number of pages a document must report
	MinPageCount int

	// AllowEncrypted accepts documents carrying an /Encrypt dictionary
	AllowEncrypted bool

	// AllowedVersions lists accepted header versions (e.g. "1.7").
	// An empty list accepts every version.
	AllowedVersions []string
}

// DefaultPolicy returns the default validation policy
func DefaultPolicy() Policy {
	return Policy{
		MaxSizeMB:       50,
		MinPageCount:    1,
		AllowEncrypted:  false,
		AllowedVersions: []string{"1.0", "1.1", "1.2", "1.3", "1.4", "1.5", "1.6", "1.7", "2.0"},
	}
}

// maxBytes returns the size limit in bytes, or 0 when unlimited
func (p Policy) maxBytes() int64 {
	if p.MaxSizeMB <= 0 {
		return 0
	}
	return int64(p.MaxSizeMB * 1024 * 1024)
}

// versionAllowed reports whether version is on the allow-list
func (p Policy) versionAllowed(version string) bool {
	if len(p.AllowedVersions) == 0 {
		return true
	}
	for _, v := range p.AllowedVersions {
		if v == version {
			return true
		}
	}
	return false
}
