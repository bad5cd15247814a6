package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/osvaldoandrade/dossier/pkg/domain"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

func submitCmd(newClient func() *client, ui *ui) *cobra.Command {
	var (
		subject   string
		corpus    string
		workTypes string
		webhook   string
		idemKey   string
	)
	cmd := &cobra.Command{
		Use:     "submit",
		Short:   "Submit a subject for analysis",
		Example: "dossier submit --subject acme --work-types report,infographic --webhook https://hooks.example.com/dossier",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(subject) == "" {
				return errors.New("subject is required")
			}
			req := domain.SubmitUploadRequest{
				SubjectName:     subject,
				CorpusReference: corpus,
				Webhook:         webhook,
				IdempotencyKey:  idemKey,
			}
			for _, wt := range splitList(workTypes) {
				req.WorkTypes = append(req.WorkTypes, domain.WorkType(wt))
			}

			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
			spin.Suffix = " Submitting upload..."
			spin.Start()
			var out domain.Upload
			err := newClient().getJSON("POST", "/v1/dossier/uploads", req, &out)
			spin.Stop()
			if err != nil {
				return err
			}
			fmt.Printf("%s Upload accepted: %s\n", ui.ok("[OK]"), out.UploadID)
			for _, wt := range out.WorkTypes {
				fmt.Printf("  %s dossier status %s --work-type %s --wait\n", ui.dim("poll:"), out.UploadID, wt)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Subject (company) name")
	cmd.Flags().StringVar(&corpus, "corpus", "", "Corpus reference (defaults to the subject)")
	cmd.Flags().StringVar(&workTypes, "work-types", "report", "Comma separated pipelines: report, infographic")
	cmd.Flags().StringVar(&webhook, "webhook", "", "Webhook notified when each artifact is ready")
	cmd.Flags().StringVar(&idemKey, "idempotency-key", "", "Return the earlier upload when resubmitting with the same key")
	return cmd
}

func statusCmd(newClient func() *client, ui *ui) *cobra.Command {
	var (
		workType string
		wait     bool
		interval time.Duration
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status <upload-id>",
		Short: "Show artifact status for an upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			path := "/v1/dossier/status/" + url.PathEscape(workType) + "?upload_id=" + url.QueryEscape(args[0])

			var st domain.StatusResponse
			if !wait {
				if err := c.getJSON("GET", path, nil, &st); err != nil {
					return err
				}
				printStatus(ui, st)
				return nil
			}

			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
			spin.Suffix = fmt.Sprintf(" Waiting for %s...", workType)
			spin.Start()
			deadline := time.Now().Add(timeout)
			for {
				if err := c.getJSON("GET", path, nil, &st); err != nil {
					spin.Stop()
					return err
				}
				if st.Status != domain.ArtifactProcessing {
					break
				}
				if time.Now().After(deadline) {
					spin.Stop()
					return fmt.Errorf("still processing after %s", timeout)
				}
				time.Sleep(interval)
			}
			spin.Stop()
			printStatus(ui, st)
			if st.Status == domain.ArtifactFailed {
				return errors.New("artifact failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&workType, "work-type", "report", "Pipeline: report or infographic")
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the artifact completes or fails")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "Poll interval with --wait")
	cmd.Flags().DurationVar(&timeout, "timeout", 45*time.Minute, "Give up waiting after this long")
	return cmd
}

func printStatus(ui *ui, st domain.StatusResponse) {
	label := ui.info(string(st.Status))
	switch st.Status {
	case domain.ArtifactCompleted:
		label = ui.ok(string(st.Status))
	case domain.ArtifactFailed:
		label = ui.err(string(st.Status))
	}
	fmt.Printf("%s %s [%s] %s\n", ui.title(st.SubjectName), st.UploadID, st.WorkType, label)
	if st.URL != "" {
		fmt.Printf("  %s\n", st.URL)
	}
	for _, u := range st.URLs {
		fmt.Printf("  %s\n", u)
	}
	if st.Error != "" {
		fmt.Printf("  %s %s\n", ui.warn("error:"), st.Error)
	}
}

func resultCmd(newClient func() *client, ui *ui) *cobra.Command {
	var (
		workType  string
		requestID string
		raw       bool
	)
	cmd := &cobra.Command{
		Use:   "result [upload-id]",
		Short: "Fetch the stored result record",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			switch {
			case requestID != "":
				path = "/v1/dossier/requests/" + url.PathEscape(requestID)
			case len(args) == 1:
				path = "/v1/dossier/results/" + url.PathEscape(workType) + "/" + url.PathEscape(args[0])
			default:
				return errors.New("pass an upload id or --request")
			}
			status, body, err := newClient().request("GET", path, nil)
			if err != nil {
				return err
			}
			if status >= 300 {
				return fmt.Errorf("error (%d): %s", status, strings.TrimSpace(string(body)))
			}
			if raw {
				fmt.Println(string(body))
				return nil
			}
			var rec domain.ResultRecord
			if err := json.Unmarshal(body, &rec); err != nil {
				return err
			}
			printRecord(ui, rec)
			return nil
		},
	}
	cmd.Flags().StringVar(&workType, "work-type", "report", "Pipeline: report or infographic")
	cmd.Flags().StringVar(&requestID, "request", "", "Look up by request id instead of upload id")
	cmd.Flags().BoolVar(&raw, "json", false, "Print the raw record")
	return cmd
}

func printRecord(ui *ui, rec domain.ResultRecord) {
	fmt.Printf("%s %s [%s] %s in %.1fs\n", ui.title(rec.SubjectName), rec.RequestID, rec.WorkType, rec.Status, rec.ProcessingDuration)
	fmt.Printf("  sections %d/%d succeeded\n", rec.SectionsSucceeded, rec.SectionsTotal)
	for _, s := range rec.Sections.All() {
		mark := ui.ok("ok  ")
		if !s.Succeeded() {
			mark = ui.err("fail")
		} else if s.Kind == domain.KindRawFallback {
			mark = ui.warn("raw ")
		}
		line := string(s.Kind)
		if s.Error != "" {
			line = s.Error
		}
		fmt.Printf("  %s %-28s %s\n", mark, s.SectionName, ui.dim(line))
	}
	if rec.ArtifactReference != nil {
		if rec.ArtifactReference.URL != "" {
			fmt.Printf("  artifact %s\n", rec.ArtifactReference.URL)
		}
		for _, u := range rec.ArtifactReference.URLs {
			fmt.Printf("  artifact %s\n", u)
		}
	}
	if rec.ArtifactError != "" {
		fmt.Printf("  %s %s\n", ui.warn("artifact error:"), rec.ArtifactError)
	}
	if rec.Error != "" {
		fmt.Printf("  %s %s\n", ui.err("error:"), rec.Error)
	}
}

func catalogCmd(newClient func() *client, ui *ui) *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "catalog <work-type>",
		Short: "List the sections of a pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/dossier/catalog/" + url.PathEscape(args[0])
			if subject != "" {
				path += "?subject=" + url.QueryEscape(subject)
			}
			var out struct {
				WorkType domain.WorkType      `json:"work_type"`
				Sections []domain.SectionSpec `json:"sections"`
			}
			if err := newClient().getJSON("GET", path, nil, &out); err != nil {
				return err
			}
			fmt.Printf("%s %d sections\n", ui.title(string(out.WorkType)), len(out.Sections))
			for i, s := range out.Sections {
				fmt.Printf("  %2d. %-28s %s\n", i+1, s.Name, ui.dim(string(s.Shape.Kind)))
				if s.Directive != "" {
					fmt.Printf("      %s\n", ui.dim(firstLine(s.Directive)))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Render directives for this subject")
	return cmd
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

func corpusCmd(newClient func() *client, ui *ui) *cobra.Command {
	corpus := &cobra.Command{
		Use:   "corpus",
		Short: "Manage subject to corpus registrations",
	}

	put := &cobra.Command{
		Use:   "put <subject> <resource-name>",
		Short: "Register the retrieval corpus of a subject (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out domain.CorpusHandle
			body := map[string]string{"resource_name": args[1]}
			if err := newClient().getJSON("PUT", "/v1/dossier/corpora/"+url.PathEscape(args[0]), body, &out); err != nil {
				return err
			}
			fmt.Printf("%s %s -> %s\n", ui.ok("[OK]"), out.Subject, out.ResourceName)
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get <subject>",
		Short: "Show a subject's corpus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out domain.CorpusHandle
			if err := newClient().getJSON("GET", "/v1/dossier/corpora/"+url.PathEscape(args[0]), nil, &out); err != nil {
				return err
			}
			fmt.Printf("%s -> %s\n", ui.title(out.Subject), out.ResourceName)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered corpora",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Corpora []domain.CorpusHandle `json:"corpora"`
			}
			if err := newClient().getJSON("GET", "/v1/dossier/corpora", nil, &out); err != nil {
				return err
			}
			if len(out.Corpora) == 0 {
				fmt.Println(ui.dim("no corpora registered"))
				return nil
			}
			for _, h := range out.Corpora {
				fmt.Printf("%-24s %s\n", h.Subject, ui.dim(h.ResourceName))
			}
			return nil
		},
	}

	corpus.AddCommand(put, get, list)
	return corpus
}
