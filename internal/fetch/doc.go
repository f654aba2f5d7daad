// Package fetch retrieves the plain documents the compliance gate needs:
// robots.txt files and terms-of-service pages. Pages themselves are loaded
// by the browser, never through this package.
package fetch
