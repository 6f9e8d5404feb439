package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/documind/internal/adapters/mcp"
	"github.com/kirillkom/documind/internal/core/domain"
	"github.com/kirillkom/documind/internal/core/ports"
)

// pollInterval is how often `ingest --wait` re-reads the document.
var pollInterval = 500 * time.Millisecond

// --- project ---

func newProjectCmd() *cobra.Command {
	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	createCmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			description, _ := cmd.Flags().GetString("description")
			return withServices(cmd, func(svc *services) error {
				project, err := svc.projects.Create(cmd.Context(), args[0], description)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), project)
			})
		},
	}
	createCmd.Flags().String("description", "", "project description")

	showCmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "project id")
			if err != nil {
				return err
			}
			return withServices(cmd, func(svc *services) error {
				project, err := svc.projects.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), project)
			})
		},
	}

	projectCmd.AddCommand(createCmd, showCmd)
	return projectCmd
}

// --- ingest ---

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest FILE",
		Short: "Upload a pdf, txt or md file into a project",
		Long: `Upload a document into a project and process it.

Examples:
  documind ingest --project 1 ./handbook.pdf
  documind ingest --project 1 --wait=false ./notes.md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, _ := cmd.Flags().GetInt64("project")
			wait, _ := cmd.Flags().GetBool("wait")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			if projectID <= 0 {
				return fmt.Errorf("--project is required")
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}

			return withServices(cmd, func(svc *services) error {
				doc, err := svc.ingestor.Upload(cmd.Context(), ports.UploadRequest{
					ProjectID: projectID,
					Filename:  filepath.Base(args[0]),
					Data:      data,
				})
				if err != nil {
					return err
				}
				if wait && !isTerminal(doc.Status) {
					waitCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
					defer cancel()
					doc, err = waitForDocument(waitCtx, svc.documents, doc.ID)
					if err != nil {
						return err
					}
				}
				if err := printJSON(cmd.OutOrStdout(), doc); err != nil {
					return err
				}
				if doc.Status == domain.StatusFailed {
					return fmt.Errorf("document %d failed: %s", doc.ID, doc.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64("project", 0, "target project id")
	cmd.Flags().Bool("wait", true, "wait until processing completes or fails")
	cmd.Flags().Duration("timeout", 10*time.Minute, "how long to wait for processing")
	return cmd
}

func isTerminal(status domain.DocumentStatus) bool {
	return status == domain.StatusCompleted || status == domain.StatusFailed
}

func waitForDocument(ctx context.Context, reader ports.DocumentReader, id int64) (*domain.Document, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		doc, err := reader.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if isTerminal(doc.Status) {
			return doc, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for document %d (status %s): %w", id, doc.Status, ctx.Err())
		case <-ticker.C:
		}
	}
}

// --- docs / status ---

func newDocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "List the documents of a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			projectID, _ := cmd.Flags().GetInt64("project")
			if projectID <= 0 {
				return fmt.Errorf("--project is required")
			}
			return withServices(cmd, func(svc *services) error {
				docs, err := svc.documents.ListByProject(cmd.Context(), projectID)
				if err != nil {
					return err
				}
				if docs == nil {
					docs = []domain.Document{}
				}
				return printJSON(cmd.OutOrStdout(), docs)
			})
		},
	}
	cmd.Flags().Int64("project", 0, "project id")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status DOCUMENT_ID",
		Short: "Show a document and its processing status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "document id")
			if err != nil {
				return err
			}
			return withServices(cmd, func(svc *services) error {
				doc, err := svc.documents.GetByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), doc)
			})
		},
	}
}

// --- ask ---

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask QUESTION...",
		Short: "Ask a question about a project's documents",
		Long: `Answer a question using only the completed documents of a project.

Examples:
  documind ask --project 1 "How many vacation days do I get?"
  documind ask --project 1 --stream What is the refund policy`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, _ := cmd.Flags().GetInt64("project")
			stream, _ := cmd.Flags().GetBool("stream")
			if projectID <= 0 {
				return fmt.Errorf("--project is required")
			}
			question := strings.Join(args, " ")

			return withServices(cmd, func(svc *services) error {
				out := cmd.OutOrStdout()
				if stream {
					return streamAnswer(cmd.Context(), out, svc.query, projectID, question)
				}
				answer, err := svc.query.Answer(cmd.Context(), projectID, question)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, answer.Text)
				printSources(out, answer.Sources)
				return nil
			})
		},
	}
	cmd.Flags().Int64("project", 0, "project id")
	cmd.Flags().Bool("stream", false, "print the answer as it is generated")
	return cmd
}

func streamAnswer(ctx context.Context, out io.Writer, query ports.DocumentQueryService, projectID int64, question string) error {
	for event := range query.AnswerStream(ctx, projectID, question) {
		switch {
		case event.Err != nil:
			fmt.Fprintln(out)
			return event.Err
		case event.Done:
			fmt.Fprintln(out)
			printSources(out, event.Sources)
			return nil
		default:
			fmt.Fprint(out, event.Text)
		}
	}
	return nil
}

func printSources(out io.Writer, sources []domain.Source) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(out, "\nSources:")
	for _, src := range sources {
		fmt.Fprintf(out, "  - %s (%s)\n", src.Name, src.FileURL)
	}
}

// --- mcp ---

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the DocuMind tools over MCP on stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout.

MCP client configuration:
  {
    "mcpServers": {
      "documind": {
        "command": "/path/to/documind",
        "args": ["mcp"]
      }
    }
  }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd, func(svc *services) error {
				s := mcpadapter.NewServer(mcpadapter.Deps{
					Projects:  svc.projects,
					Ingestor:  svc.ingestor,
					Documents: svc.documents,
					Query:     svc.query,
					Version:   version,
				})
				return mcpadapter.ServeStdio(cmd.Context(), s)
			})
		},
	}
}

func parseID(raw, what string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", what, raw)
	}
	return id, nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
