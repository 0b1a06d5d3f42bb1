package prefix

import (
	"os"

	mmerrors "github.com/mindmaze-labs/mmpack-go/pkg/errors"
)

// Create initializes a fresh prefix at root: the var/etc directory tree
// plus an empty config, generalized from a flat single-directory env
// layout to mmpack's full var/cache, var/lib and etc layout. It is an
// error for root to already contain a prefix (an existing installed-list
// file).
func Create(root string) (*Prefix, error) {
	p := &Prefix{Root: root, Config: DefaultConfig()}

	if _, err := os.Stat(p.InstalledListPath()); err == nil {
		return nil, mmerrors.New("prefix.Create", mmerrors.Internal, "", os.ErrExist)
	}

	for _, dir := range []string{p.PkgCacheDir(), p.UnpackCacheDir(), p.MetadataDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, mmerrors.New("prefix.Create", mmerrors.IO, "", err)
		}
	}

	if err := SaveConfig(p.Config, p.ConfigPath()); err != nil {
		return nil, err
	}
	if err := os.WriteFile(p.InstalledListPath(), nil, 0644); err != nil {
		return nil, mmerrors.New("prefix.Create", mmerrors.IO, "", err)
	}

	return p, nil
}

// Open loads an existing prefix at root, merging its local config over the
// user's via MergedConfig.
func Open(root string) (*Prefix, error) {
	cfg, err := MergedConfig(UserConfigPath(), (&Prefix{Root: root}).ConfigPath())
	if err != nil {
		return nil, err
	}
	return &Prefix{Root: root, Config: cfg}, nil
}
