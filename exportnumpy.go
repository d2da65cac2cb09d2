package geotable

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
)

type exportNumpy struct{}

func (cmd *exportNumpy) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
	}
	return exitCode(err)
}

func (cmd *exportNumpy) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	runlocal := flags.Bool("local", true, "run on local host (if false, run in an arvados container)")
	projectUUID := flags.String("project", "", "project `UUID` for output data")
	priority := flags.Int("priority", 500, "container request priority")
	inputFilename := flags.String("i", "-", "input matrix `file` (output of merge-tbls or probe2gene)")
	outputFilename := flags.String("o", "-", "output .npy `file`")
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		return nil
	} else if err != nil {
		return usageErrorf("%s", err)
	} else if flags.NArg() > 0 {
		return usageErrorf("errant command line arguments after parsed flags: %v", flags.Args())
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	if !*runlocal {
		if *outputFilename == "-" {
			*outputFilename = "matrix.npy"
		}
		outname := filepath.Base(*outputFilename)
		runner := arvadosContainerRunner{
			Name:        "geotable export-numpy",
			Client:      arvados.NewClientFromEnv(),
			ProjectUUID: *projectUUID,
			RAM:         8000000000,
			VCPUs:       1,
			Priority:    *priority,
		}
		err = runner.TranslatePaths(inputFilename)
		if err != nil {
			return err
		}
		runner.Args = []string{"export-numpy", "-local=true", "-i", *inputFilename, "-o", "/mnt/output/" + outname}
		output, err := runner.Run()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, output+"/"+outname)
		return nil
	}

	err = checkInputs(*inputFilename)
	if err != nil {
		return err
	}
	m, err := readMatrixFile(*inputFilename, stdin)
	if err != nil {
		return err
	}

	out, err := createOutput(*outputFilename, stdout)
	if err != nil {
		return err
	}
	defer out.Close()
	rows, cols := len(m.Rows), len(m.Cols)
	log.WithFields(log.Fields{
		"filename": *outputFilename,
		"rows":     rows,
		"cols":     cols,
		"bytes":    rows * cols * 8,
	}).Infof("writing numpy: %s", *outputFilename)
	err = writeNumpyFloat64(out, matrixData(m), rows, cols)
	if err != nil {
		return err
	}
	err = out.Commit()
	if err != nil {
		return err
	}
	if *outputFilename == "-" {
		return nil
	}
	err = writeLabels(*outputFilename+".rows.csv", m.Rows)
	if err != nil {
		return err
	}
	return writeLabels(*outputFilename+".cols.csv", m.Cols)
}

// readMatrixFile reads a matrix written by merge-tbls or probe2gene
// from the named file, or stdin if fnm is "-".
func readMatrixFile(fnm string, stdin io.Reader) (*matrix, error) {
	f, err := openInput(fnm, stdin)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInputRead, err)
	}
	defer f.Close()
	log.Infof("reading matrix %s", fnm)
	return readMatrix(f, fnm)
}

// matrixData returns m's values in row-major order.
func matrixData(m *matrix) []float64 {
	rows, cols := len(m.Rows), len(m.Cols)
	data := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			data = append(data, m.At(i, j))
		}
	}
	return data
}

func writeNumpyFloat64(w io.Writer, data []float64, rows, cols int) error {
	npw, err := gonpy.NewWriter(nopCloser{w})
	if err != nil {
		return err
	}
	npw.Shape = []int{rows, cols}
	return npw.WriteFloat64(data)
}

// writeLabels writes one "index,label" line per label.
func writeLabels(fnm string, labels []string) error {
	var buf bytes.Buffer
	for i, label := range labels {
		fmt.Fprintf(&buf, "%d,%q\n", i, label)
	}
	log.Infof("writing labels: %s", fnm)
	return os.WriteFile(fnm, buf.Bytes(), 0666)
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
