package codegen

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteArtifacts writes the dispatch header and the proxy. Both are staged as
// temp files beside their targets first; if staging either fails, neither
// target is touched. If installing the proxy fails after the header was
// replaced, the previous header is put back.
func WriteArtifacts(a *Artifacts, headerPath, proxyPath string) error {
	headerTmp, err := stage(headerPath, a.DispatchHeader)
	if err != nil {
		return fmt.Errorf("writing %s dispatch header: %w", a.Class, err)
	}
	proxyTmp, err := stage(proxyPath, a.Proxy)
	if err != nil {
		os.Remove(headerTmp)
		return fmt.Errorf("writing %s proxy: %w", a.Class, err)
	}

	previous, readErr := os.ReadFile(headerPath)
	if err := os.Rename(headerTmp, headerPath); err != nil {
		os.Remove(headerTmp)
		os.Remove(proxyTmp)
		return fmt.Errorf("installing %s: %w", headerPath, err)
	}
	if err := os.Rename(proxyTmp, proxyPath); err != nil {
		os.Remove(proxyTmp)
		if rerr := restore(headerPath, previous, readErr == nil); rerr != nil {
			log.Errorf("restoring %s: %s", headerPath, rerr)
		}
		return fmt.Errorf("installing %s: %w", proxyPath, err)
	}
	log.Infof("wrote %s and %s", headerPath, proxyPath)
	return nil
}

// restore puts back the file that existed at path before it was replaced,
// or removes path if there was none.
func restore(path string, previous []byte, existed bool) error {
	if !existed {
		return os.Remove(path)
	}
	tmp, err := stage(path, previous)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// stage writes data to a temp file in path's directory and returns its name.
func stage(path string, data []byte) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}
