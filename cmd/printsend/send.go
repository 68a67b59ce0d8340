package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/printrelay/backend/internal/app"
	"github.com/printrelay/backend/internal/models"
	"github.com/printrelay/backend/internal/payment"
	"github.com/printrelay/backend/internal/upload"
)

type sendOptions struct {
	copies  int
	color   string
	duplex  bool
	paper   string
	name    string
	id      string
	contact string
	wait    bool
	qrPath  string
}

func newSendCmd(global *globalOptions) *cobra.Command {
	opts := &sendOptions{}
	cmd := &cobra.Command{
		Use:   "send FILE...",
		Short: "Convert and upload files as one print job",
		Long: `Convert each FILE to PDF and upload them as one print job.

Without --wait the command returns once the local estimate is known.
With --wait it keeps polling until the shop posts the amount due or the
settlement timeout passes, and prints the final figure.`,
		Example: `  printsend send thesis.pdf slides.pptx --name "Asha" --id 21CS042 --copies 2
  printsend send poster.png --color --paper A3 --wait --qr pay.png`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, global, opts, args)
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.copies, "copies", 1, "number of copies")
	f.StringVar(&opts.color, "color-mode", "bw", "bw or color")
	f.BoolVar(&opts.duplex, "duplex", false, "print double-sided")
	f.StringVar(&opts.paper, "paper", "A4", "paper size: A4, A3, Letter or Legal")
	f.StringVar(&opts.name, "name", "", "sender name (required)")
	f.StringVar(&opts.id, "id", "", "sender id, such as a roll number")
	f.StringVar(&opts.contact, "contact", "", "sender phone or email")
	f.BoolVar(&opts.wait, "wait", false, "wait for the shop's payment request")
	f.StringVar(&opts.qrPath, "qr", "", "write the payment QR code PNG to this path")
	f.Bool("color", false, "shorthand for --color-mode color")
	return cmd
}

func (o *sendOptions) settings(cmd *cobra.Command) models.JobSettings {
	color := o.color
	if c, _ := cmd.Flags().GetBool("color"); c {
		color = string(models.ColorModeColor)
	}
	return models.JobSettings{
		Copies:    o.copies,
		ColorMode: models.ColorMode(color),
		Duplex:    o.duplex,
		PaperSize: models.PaperSize(o.paper),
	}
}

func runSend(cmd *cobra.Command, global *globalOptions, opts *sendOptions, args []string) error {
	if strings.TrimSpace(opts.name) == "" {
		return fmt.Errorf("--name is required")
	}

	var files []upload.SourceFile
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		files = append(files, upload.SourceFile{StagedID: path, Name: filepath.Base(path), Data: data})
	}

	cfg, log, err := global.load()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	rt := app.Open(ctx, cfg, log, nil)
	defer rt.Close()
	if rt.StoreErr != nil {
		return fmt.Errorf("document store unavailable: %w", rt.StoreErr)
	}

	job, err := rt.Jobs.Start(upload.Request{
		Files:    files,
		Settings: opts.settings(cmd),
		Sender: models.SenderIdentity{
			Name:    strings.TrimSpace(opts.name),
			ID:      strings.TrimSpace(opts.id),
			Contact: strings.TrimSpace(opts.contact),
		},
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job %s: sending %d file(s)\n", job.ID, len(files))

	final, err := follow(ctx, out, rt.Jobs, job.ID, opts.wait)
	if err != nil {
		return err
	}
	return report(out, final, opts.qrPath)
}

// follow prints job events. Without wait it cancels the job once the
// estimate is known.
func follow(ctx context.Context, out io.Writer, jobs *upload.Manager, jobID string, wait bool) (*upload.Job, error) {
	events, unsubscribe, err := jobs.Subscribe(jobID)
	if err != nil {
		return nil, err
	}
	defer unsubscribe()

	lastStage := ""
	estimated := false
	for {
		select {
		case <-ctx.Done():
			jobs.Cancel(jobID)
			return nil, ctx.Err()
		case ev, open := <-events:
			if !open {
				job, _ := jobs.GetJob(jobID)
				return job, nil
			}
			job := ev.Job
			if job.Stage != lastStage {
				fmt.Fprintf(out, "  [%3.0f%%] %s\n", job.Progress, job.Stage)
				lastStage = job.Stage
			}
			if job.Estimate != nil && !estimated {
				estimated = true
				fmt.Fprintf(out, "Estimated amount: %s %.2f\n", job.Estimate.Currency, job.Estimate.Amount)
				if !wait {
					jobs.Cancel(jobID)
					return job, nil
				}
				fmt.Fprintln(out, "Waiting for the shop to confirm the amount...")
			}
		}
	}
}

func report(out io.Writer, job *upload.Job, qrPath string) error {
	for _, w := range job.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}

	switch job.Status {
	case upload.StatusError:
		return fmt.Errorf("job failed: %s", job.Error)
	case upload.StatusSettled:
		fmt.Fprintf(out, "Amount due: %s %.2f\n", job.Payment.Currency, job.Payment.Amount)
	case upload.StatusTimedOut:
		fmt.Fprintf(out, "The shop did not respond; pay the estimate of %s %.2f\n", job.Payment.Currency, job.Payment.Amount)
	}

	if job.PaymentURI == "" {
		return nil
	}
	fmt.Fprintf(out, "Pay with UPI: %s\n", job.PaymentURI)
	if qrPath != "" {
		png, err := payment.QRCode(job.PaymentURI, 256)
		if err != nil {
			return err
		}
		if err := os.WriteFile(qrPath, png, 0644); err != nil {
			return fmt.Errorf("write qr code: %w", err)
		}
		fmt.Fprintf(out, "QR code written to %s\n", qrPath)
	}
	return nil
}
