package pairing

import (
	"errors"
	"testing"
)

func TestResolveMask(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"tumor patch", "/data/label-1/tumor_001_704_12.png", "/data/label-1/mask_tumor_001_704_12.png", false},
		{"normal patch", "/data/label-0/normal_042_704_3.png", "/data/label-0/mask_normal_042_704_3.png", false},
		{"relative path", "normal_1.png", "mask_normal_1.png", false},
		{"tumor wins over normal", "/d/tumor_normal_1.png", "/d/mask_tumor_normal_1.png", false},
		{"directory tokens untouched", "/tumor/normal/normal_7.png", "/tumor/normal/mask_normal_7.png", false},
		{"repeated token replaced everywhere", "/d/tumor_tumor.png", "/d/mask_tumor_mask_tumor.png", false},
		{"already a tumor mask", "/d/mask_tumor_1.png", "", true},
		{"already a normal mask", "/d/mask_normal_1.png", "", true},
		{"no class token", "/d/patch_1.png", "", true},
	}
	r := DefaultResolver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ResolveMask(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnresolvablePair) {
					t.Fatalf("ResolveMask(%q) error = %v, want ErrUnresolvablePair", tt.in, err)
				}
				if got != "" {
					t.Errorf("ResolveMask(%q) = %q on error, want empty path", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveMask(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ResolveMask(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolveMask_CustomTokens(t *testing.T) {
	r := Resolver{MaskToken: "seg", TumorToken: "pos", NormalToken: "neg", Separator: "-"}
	got, err := r.ResolveMask("/x/neg-5.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/x/seg-neg-5.jpg" {
		t.Errorf("got %q, want %q", got, "/x/seg-neg-5.jpg")
	}
}

func TestIsMask(t *testing.T) {
	r := DefaultResolver()
	if !r.IsMask("/a/mask_tumor_1.png") {
		t.Error("mask_tumor_1.png should be a mask")
	}
	if r.IsMask("/mask/tumor_1.png") {
		t.Error("directory name should not mark a file as a mask")
	}
}
