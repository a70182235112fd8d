package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trinitydeploy/trinity/pkg/engine"
)

func TestParseRepository(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		want engine.Repository
	}{
		{
			name: "https",
			ref:  "https://github.com/acme/shop",
			want: engine.Repository{Host: "github.com", Owner: "acme", Name: "shop", Branch: "main"},
		},
		{
			name: "https with .git and branch",
			ref:  "https://github.com/acme/shop.git#develop",
			want: engine.Repository{Host: "github.com", Owner: "acme", Name: "shop", Branch: "develop"},
		},
		{
			name: "https with trailing slash",
			ref:  "https://github.com/acme/shop/",
			want: engine.Repository{Host: "github.com", Owner: "acme", Name: "shop", Branch: "main"},
		},
		{
			name: "tree url",
			ref:  "https://github.com/acme/shop/tree/release/v2",
			want: engine.Repository{Host: "github.com", Owner: "acme", Name: "shop", Branch: "release/v2"},
		},
		{
			name: "scp style",
			ref:  "git@github.com:acme/shop.git",
			want: engine.Repository{Host: "github.com", Owner: "acme", Name: "shop", Branch: "main"},
		},
		{
			name: "scp style with branch",
			ref:  "git@gitlab.com:group/sub/shop#feature-x",
			want: engine.Repository{Host: "gitlab.com", Owner: "group/sub", Name: "shop", Branch: "feature-x"},
		},
		{
			name: "ssh url with port",
			ref:  "ssh://git@github.com:22/acme/shop.git",
			want: engine.Repository{Host: "github.com", Owner: "acme", Name: "shop", Branch: "main"},
		},
		{
			name: "shorthand",
			ref:  "acme/shop",
			want: engine.Repository{Owner: "acme", Name: "shop", Branch: "main"},
		},
		{
			name: "shorthand with branch",
			ref:  "acme/shop#staging",
			want: engine.Repository{Owner: "acme", Name: "shop", Branch: "staging"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.ParseRepository(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRepositoryInvalid(t *testing.T) {
	refs := []string{
		"",
		"   ",
		"shop",
		"./local/dir",
		"https://github.com/acme",
		"https://github.com/acme/.git",
		"ftp://github.com/acme/shop",
	}

	for _, ref := range refs {
		t.Run(ref, func(t *testing.T) {
			_, err := engine.ParseRepository(ref)
			require.Error(t, err)
			assert.True(t, engine.IsValidation(err))
		})
	}
}

func TestRepositoryStrings(t *testing.T) {
	r := engine.Repository{Host: "github.com", Owner: "acme", Name: "shop", Branch: "main"}
	assert.Equal(t, "acme/shop", r.FullName())
	assert.Equal(t, "github.com/acme/shop#main", r.String())
}
