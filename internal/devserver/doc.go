// Package devserver serves a build's destination directory during
// development and pushes reload notifications to connected browsers over
// socket.io.
//
// HTML responses get a small client snippet injected before `</body>`. The
// snippet reloads the page on `browser:reload` and swaps stylesheets in
// place on `file:reload`. Any socket client may emit `gridpipe:reload` to
// have the server broadcast a reload, which is what the `reload` command of
// the CLI does.
package devserver
