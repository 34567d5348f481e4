package browser

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/hazyhaar/bannerclick/consent/internal/dom"
)

// BuiltinExtension names the embedded forced-rejection script.
const BuiltinExtension = "builtin"

//go:embed extension.js
var builtinExtension string

// InstallExtension runs a forced-rejection script in the current document
// and in every document the tab loads until it is uninstalled. path is a
// JS file or BuiltinExtension.
func (d *Driver) InstallExtension(ctx context.Context, path string) (string, error) {
	src := builtinExtension
	if path != BuiltinExtension {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("browser: extension %s: %w", path, err)
		}
		src = string(data)
	}

	remove, err := d.page.Context(ctx).EvalOnNewDocument(src)
	if err != nil {
		return "", fmt.Errorf("browser: extension %s: %w", path, classify(err))
	}
	if _, err := d.page.Context(ctx).Eval(`(src) => { (0, eval)(src); }`, src); err != nil {
		remove()
		return "", fmt.Errorf("browser: extension %s: %w", path, classify(err))
	}

	d.mu.Lock()
	d.nextExt++
	id := fmt.Sprintf("ext-%d", d.nextExt)
	d.extensions[id] = remove
	d.mu.Unlock()
	return id, nil
}

func (d *Driver) UninstallExtension(_ context.Context, id string) error {
	d.mu.Lock()
	remove, ok := d.extensions[id]
	delete(d.extensions, id)
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("browser: extension id %s: %w", id, dom.ErrNotFound)
	}
	return classify(remove())
}
