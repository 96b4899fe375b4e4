package main

import (
	"bufio"
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// ingestFiles uploads local files into the knowledge base and runs the
// full pipeline on each.
func ingestFiles(ctx context.Context, a *app, paths []string) error {
	bar := getProgressBar(len(paths), "📄 Ingesting documents...")

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %v", path, err)
		}

		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if mimeType == "" {
			mimeType = "text/plain"
		}

		doc, err := a.pipeline.Ingest(ctx, filepath.Base(path), mimeType, data)
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %v", path, err)
		}

		if err := a.pipeline.Process(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to process %s: %v", path, err)
		}

		bar.Add(1)
	}

	bar.Finish()
	color.Green("\n✓ Ingested %d documents\n", len(paths))
	return nil
}

// chatLoop runs the interactive prompt against the knowledge base.
func chatLoop(ctx context.Context, a *app) error {
	color.Cyan("\nChat with your knowledge base (type 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		question := scanner.Text()
		if strings.ToLower(question) == "exit" {
			break
		}
		if strings.TrimSpace(question) == "" {
			continue
		}

		spinner := getSpinner("🤖 Generating response...")
		answer, err := a.engine.Query(ctx, question, "")
		spinner.Finish()
		fmt.Print("\r")

		if err != nil {
			color.Red("Error: %v\n", err)
			continue
		}

		assistantPrompt("Assistant: %s\n", answer.Text)
		if !answer.Grounded {
			color.Yellow("(no knowledge-base material matched; answer is ungrounded)\n")
		} else if len(answer.Citations) > 0 {
			var refs []string
			for _, c := range answer.Citations {
				refs = append(refs, fmt.Sprintf("%s#%d", c.DocumentID, c.ChunkIndex))
			}
			color.Blue("Sources: %s\n", strings.Join(refs, ", "))
		}
	}

	return scanner.Err()
}
