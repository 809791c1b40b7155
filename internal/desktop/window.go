package desktop

import (
	"fmt"

	webview "github.com/webview/webview_go"
)

// webviewPresenter shows a URL in a native OS window. Present blocks on
// the platform event loop until the user closes the window, so it must
// run on the main thread.
type webviewPresenter struct{}

func newWebviewPresenter() *webviewPresenter {
	return &webviewPresenter{}
}

func (p *webviewPresenter) Present(title, url string, width, height int) (err error) {
	// The webview bindings panic when the platform has no display or the
	// native backend is missing; surface that as an error instead.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to open native window: %v", r)
		}
	}()

	w := webview.New(false)
	if w == nil {
		return fmt.Errorf("failed to create native window")
	}
	defer w.Destroy()

	w.SetTitle(title)
	w.SetSize(width, height, webview.HintNone)
	w.Navigate(url)
	w.Run()
	return nil
}
