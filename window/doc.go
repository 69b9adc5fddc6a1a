// Package window keeps a fixed-radius neighborhood of feed pages pooled
// around the current page.
//
// On every page change the Controller acquires the new window's members,
// activates the current page and only then releases members that fell out
// of the window, so a page present in both windows is never torn down and
// recreated.
//
//	ctrl, _ := window.NewController(p, window.Keys(keys), window.Config{Radius: 1})
//	delta := ctrl.OnPageChanged(2, len(keys)) // pooled: {1, 2, 3}
package window
