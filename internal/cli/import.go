package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/timeblock/internal/model"
	"github.com/rcliao/timeblock/internal/normalize"
	"github.com/rcliao/timeblock/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import tasks, records and policy",
		Long: "Import a snapshot (the format produced by export) from a file or stdin. " +
			"With --records the input is a JSON array of records; with --google it is a Google Calendar events.list payload.",
		Args: cobra.MaximumNArgs(1),
		Run:  runImport,
	}
	cmd.Flags().Bool("records", false, "Input is a JSON array of records")
	cmd.Flags().Bool("google", false, "Input is a Google Calendar events list")

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	asRecords, _ := cmd.Flags().GetBool("records")
	asGoogle, _ := cmd.Flags().GetBool("google")

	var in io.Reader = os.Stdin
	if len(args) > 0 {
		f, err := os.Open(args[0])
		if err != nil {
			exitErr("open input", err)
		}
		defer f.Close()
		in = f
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	user := getUser()
	var res *store.ImportResult
	switch {
	case asGoogle:
		recs, err := normalize.DecodeGoogleEvents(in)
		if err != nil {
			exitErr("parse google events", err)
		}
		res, err = putRecords(cmd, s, user, recs)
		if err != nil {
			exitErr("import", err)
		}
	case asRecords:
		var raws []normalize.RawRecord
		if err := json.NewDecoder(in).Decode(&raws); err != nil {
			exitErr("parse json", err)
		}
		recs := make([]normalize.Record, 0, len(raws))
		res = &store.ImportResult{}
		for _, raw := range raws {
			rec, err := raw.Record()
			if err != nil {
				res.Skipped = append(res.Skipped, fmt.Sprintf("record %s: %v", raw.ID, err))
				continue
			}
			recs = append(recs, rec)
		}
		more, err := putRecords(cmd, s, user, recs)
		if err != nil {
			exitErr("import", err)
		}
		res.Records = more.Records
		res.Skipped = append(res.Skipped, more.Skipped...)
	default:
		var snap store.Snapshot
		if err := json.NewDecoder(in).Decode(&snap); err != nil {
			exitErr("parse json", err)
		}
		res, err = s.Import(cmd.Context(), user, &snap)
		if err != nil {
			exitErr("import", err)
		}
	}

	b, _ := json.Marshal(res)
	fmt.Println(string(b))
}

func putRecords(cmd *cobra.Command, s store.Store, user string, recs []normalize.Record) (*store.ImportResult, error) {
	res := &store.ImportResult{}
	for _, rec := range recs {
		if err := s.PutRecord(cmd.Context(), user, rec); err != nil {
			if errors.Is(err, model.ErrValidation) {
				res.Skipped = append(res.Skipped, fmt.Sprintf("record %s: %v", rec.RecordID(), err))
				continue
			}
			return res, err
		}
		res.Records++
	}
	return res, nil
}
