package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"sitechat/internal/config"
	"sitechat/internal/domain"
	"sitechat/internal/widget"
)

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadClientConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	defer logger.Sync()

	api := widget.NewHTTPClient(cfg.APIURL, cfg.Timeout)
	ctrl := widget.NewController(api, widget.NewFileStore(cfg.StateFile), logger)

	fmt.Println("===== Chat del sitio =====")
	fmt.Println("Comandos: /open, /close, /retry, /dismiss, /quit")

	if err := ctrl.Start(ctx); err != nil {
		fmt.Printf("No se pudo iniciar la sesion: %v\n", err)
	}
	ctrl.OpenChat()
	printTranscript(ctrl.Snapshot())

	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return
		}
		line = strings.TrimSpace(line)

		switch line {
		case "":
			continue
		case "/quit":
			fmt.Println("Hasta luego.")
			return
		case "/open":
			ctrl.OpenChat()
			printTranscript(ctrl.Snapshot())
			continue
		case "/close":
			ctrl.CloseChat()
			fmt.Println("(chat minimizado, escribe /open para volver)")
			continue
		case "/dismiss":
			ctrl.DismissError()
			continue
		case "/retry":
			retryFailed(ctx, ctrl)
			continue
		}

		snap := ctrl.Snapshot()
		if !snap.Open {
			fmt.Println("(el chat esta cerrado, escribe /open)")
			continue
		}
		if snap.SessionID == "" {
			if err := ctrl.Start(ctx); err != nil {
				fmt.Printf("No se pudo iniciar la sesion: %v\n", err)
				continue
			}
		}

		if err := ctrl.SendMessage(ctx, line); err != nil {
			switch {
			case errors.Is(err, widget.ErrBusy):
				fmt.Println("Espera, el mensaje anterior aun se esta enviando.")
			case errors.Is(err, widget.ErrNotReady):
				fmt.Println("El chat no esta listo.")
			default:
				fmt.Printf("No se pudo enviar (usa /retry): %v\n", err)
			}
			continue
		}
		printLast(ctrl.Snapshot())
	}
}

func retryFailed(ctx context.Context, ctrl *widget.Controller) {
	snap := ctrl.Snapshot()
	retried := false
	for _, e := range snap.Transcript {
		if e.Status != widget.EntryFailed {
			continue
		}
		retried = true
		if err := ctrl.Retry(ctx, e.ID); err != nil {
			fmt.Printf("Reintento fallido: %v\n", err)
			return
		}
	}
	if !retried {
		fmt.Println("No hay mensajes pendientes de reintento.")
		return
	}
	printLast(ctrl.Snapshot())
}

func printTranscript(snap widget.Snapshot) {
	fmt.Printf("Sesion: %s (%s)\n", snap.SessionID, snap.State)
	for _, e := range snap.Transcript {
		printEntry(e)
	}
	if snap.Error != "" {
		fmt.Printf("[error] %s\n", snap.Error)
	}
}

func printLast(snap widget.Snapshot) {
	if n := len(snap.Transcript); n > 0 {
		printEntry(snap.Transcript[n-1])
	}
}

func printEntry(e widget.Entry) {
	who := "Tu"
	switch e.Sender {
	case domain.SenderBot:
		who = "Bot"
	case domain.SenderStaff:
		who = "Staff"
	}
	suffix := ""
	if e.Status == widget.EntryFailed {
		suffix = " [no enviado]"
	}
	fmt.Printf("%s [%s]: %s%s\n", who, e.Timestamp.Local().Format("15:04"), e.Content, suffix)
}
