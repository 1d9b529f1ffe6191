// Package xmlutil holds small helpers shared by the XML-consuming parsers.
package xmlutil

import "io"

// CharsetReader is installed as an [encoding/xml.Decoder]'s CharsetReader.
//
// Repository metadata in the wild frequently declares a charset other than
// UTF-8 (or omits the declaration) while the document body is, in practice,
// already UTF-8. The stdlib decoder refuses any declared charset it does not
// recognize, so this treats every declared charset as a no-op pass-through
// rather than rejecting the document outright.
func CharsetReader(charset string, input io.Reader) (io.Reader, error) {
	return input, nil
}
