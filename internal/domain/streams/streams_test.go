package streams

import "testing"

func TestSplitParentPath(t *testing.T) {
	tests := []struct {
		path       string
		parent     string
		leaf       string
		hasParent  bool
	}{
		{"blog", "", "blog", false},
		{"blog/posts", "blog", "posts", true},
		{"a/b/c", "a/b", "c", true},
	}
	for _, tt := range tests {
		parent, leaf, hasParent := SplitParentPath(tt.path)
		if parent != tt.parent || leaf != tt.leaf || hasParent != tt.hasParent {
			t.Errorf("SplitParentPath(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.path, parent, leaf, hasParent, tt.parent, tt.leaf, tt.hasParent)
		}
	}
}
