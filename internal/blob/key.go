package blob

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// languageExt maps a supported language tag to its canonical file
// extension, used for the blob key. The sandbox workspace filename
// comes from languages.Spec.SourceFile instead.
var languageExt = map[string]string{
	"javascript": "js",
	"typescript": "ts",
	"python":     "py",
	"java":       "java",
	"cpp":        "cpp",
	"c":          "c",
	"go":         "go",
	"rust":       "rs",
	"ruby":       "rb",
	"php":        "php",
}

// Ext returns the canonical extension for a supported language, or
// "txt" if unrecognized (callers are expected to have already
// validated the language).
func Ext(language string) string {
	if ext, ok := languageExt[language]; ok {
		return ext
	}
	return "txt"
}

// NewKey builds a blob key path: submissions/{userID}/{problemID}/{ts}-{rand}.{ext}
func NewKey(userID, problemID, language string) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random suffix: %w", err)
	}
	ts := time.Now().UnixMilli()
	return fmt.Sprintf("submissions/%s/%s/%d-%s.%s", userID, problemID, ts, hex.EncodeToString(buf), Ext(language)), nil
}
