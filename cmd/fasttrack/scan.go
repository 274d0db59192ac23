package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"fasttrack/internal/api"
	"fasttrack/internal/scanner"
	"fasttrack/internal/session"
	"fasttrack/pkg/types"

	"github.com/k0kubun/pp/v3"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var scanCommand = &cli.Command{
	Name:  "scan",
	Usage: "Read a card reader or camera decoder and look up each code",
	Description: "Reads a keyboard-emulating reader from KIOSK_DEVICE (or stdin) and looks up\n" +
		"every burst it produces. With --camera the input is decoder output, one code\n" +
		"per line, e.g. `zbarcam --raw | fasttrack scan --camera --target status`.",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "target",
			Usage: "What scanned codes are: identity (RFID cards) or status (receipt QR codes)",
			Value: string(types.ScanTargetIdentity),
		},
		&cli.StringFlag{
			Name:  "device",
			Usage: "Scanner device path, overrides KIOSK_DEVICE; - reads stdin",
		},
		&cli.BoolFlag{
			Name:  "camera",
			Usage: "Treat input as decoder output, one code per line",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "How long one camera scan waits for a code",
			Value: scanner.DefaultCameraTimeout,
		},
		&cli.StringFlag{
			Name:    "access-token",
			Usage:   "Staff access token sent with lookups",
			EnvVars: []string{"FASTTRACK_ACCESS_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "refresh-token",
			Usage:   "Staff refresh token used when the access token expires",
			EnvVars: []string{"FASTTRACK_REFRESH_TOKEN"},
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Dump full lookup results",
		},
	},
	Action: scan,
}

func scan(cCtx *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, err := loadConfig(cCtx)
	if err != nil {
		return err
	}

	logger := newLogger(config, &logrus.TextFormatter{FullTimestamp: true})
	if cCtx.Bool("debug") {
		logger.SetLevel(logrus.DebugLevel)
	}

	target := types.ScanTarget(cCtx.String("target"))
	if target != types.ScanTargetIdentity && target != types.ScanTargetStatus {
		return fmt.Errorf("unknown target %q, use identity or status", target)
	}

	tokens := session.NewMemoryStore(types.SessionTokens{
		Access:  cCtx.String("access-token"),
		Refresh: cCtx.String("refresh-token"),
	})

	client := api.New(
		config.APIBaseURL,
		api.WithLogger(logger),
		api.WithTimeout(time.Duration(config.APITimeoutSec)*time.Second),
		api.WithTokenStore(tokens),
	)
	router := scanner.NewRouter(client, config.ScanLookupsPerSec, logger)

	input, closeInput, err := openDevice(cCtx.String("device"), config.KioskDevice)
	if err != nil {
		return err
	}
	defer closeInput()

	// closing the device unblocks a pending read on shutdown
	go func() {
		<-ctx.Done()
		closeInput()
	}()

	p := &scanPrinter{logger: logger, debug: cCtx.Bool("debug")}

	if cCtx.Bool("camera") {
		return scanCamera(ctx, input, cCtx.Duration("timeout"), router, target, p)
	}
	return scanDevice(ctx, input, time.Duration(config.ScannerGapMS)*time.Millisecond, router, target, p)
}

func openDevice(flagPath, envPath string) (io.Reader, func(), error) {
	path := flagPath
	if path == "" {
		path = envPath
	}
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open scanner device %s: %w", path, err)
	}

	var once sync.Once
	return f, func() {
		once.Do(func() { _ = f.Close() })
	}, nil
}

func scanDevice(ctx context.Context, input io.Reader, gap time.Duration, router *scanner.Router, target types.ScanTarget, p *scanPrinter) error {
	events := make(chan types.ScanEvent, 8)
	listener := scanner.NewListener(scanner.NewKeystrokeBuffer(gap), func(ev types.ScanEvent) {
		select {
		case events <- ev:
		default:
			p.logger.WithField("code", ev.Code).Warn("dropping scan, lookups are backed up")
		}
	})

	done := make(chan error, 1)
	go func() {
		done <- scanner.NewDeviceReader(input, listener).Run(ctx)
		close(events)
	}()

	p.logger.WithField("target", target).Info("waiting for scans")
	for ev := range events {
		res, err := router.Route(ctx, ev, target, nil)
		p.print(ev, res, err)
	}

	return <-done
}

func scanCamera(ctx context.Context, input io.Reader, timeout time.Duration, router *scanner.Router, target types.ScanTarget, p *scanPrinter) error {
	decoder := scanner.NewLineDecoder(input)
	defer decoder.Close()
	cam := scanner.CameraSession{Timeout: timeout}

	p.logger.WithField("target", target).Info("waiting for camera codes")
	for {
		ev, err := cam.Run(ctx, decoder)
		switch {
		case err == nil:
		case errors.Is(err, scanner.ErrScanCancelled), errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, scanner.ErrScanTimeout):
			p.logger.Info("no code seen, still waiting")
			continue
		default:
			return err
		}

		res, err := router.Route(ctx, ev, target, nil)
		p.print(ev, res, err)
	}
}

type scanPrinter struct {
	logger *logrus.Logger
	debug  bool
}

func (p *scanPrinter) print(ev types.ScanEvent, res *scanner.Result, err error) {
	entry := p.logger.WithFields(logrus.Fields{
		"code":   ev.Code,
		"source": ev.Source,
	})

	switch {
	case errors.Is(err, types.ErrLookupNotFound):
		entry.Warn("no match")
		return
	case errors.Is(err, scanner.ErrTooManyScans):
		entry.Warn("scan ignored, too many lookups")
		return
	case err != nil:
		entry.WithError(err).Error("lookup failed")
		return
	}

	if p.debug {
		pp.Println(res)
	}

	switch {
	case res.Identity != nil:
		entry.WithFields(logrus.Fields{
			"student_number": res.Identity.Number(),
			"name":           res.Identity.FirstName + " " + res.Identity.LastName,
			"enrolled":       res.Identity.Enrolled,
		}).Info("card matched")
	case res.Record != nil:
		entry.WithFields(logrus.Fields{
			"request_id": res.Record.RequestID,
			"status":     res.Record.Status().String(),
			"percent":    res.Record.Percent(),
		}).Info("request found")
	}
}
