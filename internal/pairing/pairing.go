// Package pairing derives the mask file that belongs to an image patch.
//
// Masks live next to their images and differ only by a token in the file
// name: "tumor_..." pairs with "mask_tumor_..." and "normal_..." pairs with
// "mask_normal_...". Substitution is applied to the base name only so that
// directory names containing the same tokens are never rewritten.
package pairing

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnresolvablePair is returned when no mask path can be derived for an
// image path (the path is already a mask, or carries neither class token).
var ErrUnresolvablePair = errors.New("cannot derive mask path")

// Default file name tokens.
const (
	DefaultMaskToken   = "mask"
	DefaultTumorToken  = "tumor"
	DefaultNormalToken = "normal"
	DefaultSeparator   = "_"
)

// Resolver maps image paths to mask paths by token substitution.
// The zero value is not usable; start from [DefaultResolver].
type Resolver struct {
	MaskToken   string
	TumorToken  string
	NormalToken string
	Separator   string // joins MaskToken and the class token, e.g. "mask" + "_" + "tumor"
}

// DefaultResolver returns a Resolver using the "mask_tumor" / "mask_normal"
// naming convention.
func DefaultResolver() Resolver {
	return Resolver{
		MaskToken:   DefaultMaskToken,
		TumorToken:  DefaultTumorToken,
		NormalToken: DefaultNormalToken,
		Separator:   DefaultSeparator,
	}
}

// IsMask reports whether path names a mask file.
func (r Resolver) IsMask(path string) bool {
	return strings.Contains(filepath.Base(path), r.MaskToken)
}

// ResolveMask returns the mask path paired with imagePath.
func (r Resolver) ResolveMask(imagePath string) (string, error) {
	dir, base := filepath.Split(imagePath)
	if r.MaskToken == "" || strings.Contains(base, r.MaskToken) {
		return "", fmt.Errorf("%w: %s is already a mask", ErrUnresolvablePair, imagePath)
	}

	var token string
	switch {
	case r.TumorToken != "" && strings.Contains(base, r.TumorToken):
		token = r.TumorToken
	case r.NormalToken != "" && strings.Contains(base, r.NormalToken):
		token = r.NormalToken
	default:
		return "", fmt.Errorf("%w: %s has neither %q nor %q in its name",
			ErrUnresolvablePair, imagePath, r.TumorToken, r.NormalToken)
	}

	masked := strings.ReplaceAll(base, token, r.MaskToken+r.Separator+token)
	return dir + masked, nil
}
