// compileinfoprint is imported by the rasterval and rastervalsummary binaries
// for its side effect: the build line is printed to os.Stderr before any
// flags are parsed, so that batch logs record which build produced the
// validation reports.
package compileinfoprint

import (
	"os"

	"github.com/carbocation/rasterval/compileinfo"
)

func init() {
	compileinfo.Fprint(os.Stderr)
}
