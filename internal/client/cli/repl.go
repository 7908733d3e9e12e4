package cli

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func (a *App) status() string {
	s := a.session.UserName()
	if roomID := a.session.RoomID(); roomID != "" {
		s += "@" + roomID
	}
	return s
}

// repl reads commands until EOF or exit. Command handlers print their
// own errors; the loop itself never fails.
func (a *App) repl(ctx context.Context) {
	for {
		fmt.Printf("rs %s> ", a.status())
		line, err := a.reader.ReadString('\n')
		if err != nil {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			fmt.Println("Commands: users, rooms, chat <text>, history, clip <text>, clips,")
			fmt.Println("  invite <userId> [message], accept, decline, requests,")
			fmt.Println("  request <roomId>, approve <userId> <roomId>, join <roomId>, leave, exit")

		case "users":
			users, err := a.session.Users(ctx)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			for _, u := range users {
				room := ""
				if u.RoomID != nil {
					room = " in " + *u.RoomID
				}
				fmt.Printf("  %s  %s%s\n", u.ID, u.Name, room)
			}

		case "rooms":
			rooms, err := a.session.Rooms(ctx)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			for _, r := range rooms {
				fmt.Printf("  %s  %s (%d members)\n", r.ID, r.Name, len(r.UserIDs))
			}

		case "chat":
			if len(args) == 0 {
				fmt.Println("usage: chat <text>")
				continue
			}
			if err := a.session.SendChat(ctx, strings.Join(args, " ")); err != nil {
				fmt.Println("error:", err)
			}

		case "history":
			for _, op := range a.session.ChatView() {
				if msg := op.Item.Chat(); msg != nil {
					ts := time.Unix(msg.Timestamp, 0).Format("15:04:05")
					fmt.Printf("  [%s] %s: %s\n", ts, msg.UserName, msg.Message)
				}
			}

		case "clip":
			if len(args) == 0 {
				fmt.Println("usage: clip <text>")
				continue
			}
			if err := a.session.ShareText(ctx, strings.Join(args, " ")); err != nil {
				fmt.Println("error:", err)
			}

		case "clips":
			for _, op := range a.session.ClipboardView() {
				clip := op.Item.Clipboard()
				if clip == nil {
					continue
				}
				switch {
				case clip.Text != "":
					fmt.Printf("  %s [text] %s\n", op.ID, clip.Text)
				case clip.FileCount > 0:
					state := "compressing"
					if clip.Ready {
						state = "ready"
					}
					fmt.Printf("  %s [%d files, %s] %s\n", op.ID, clip.FileCount, state, strings.Join(clip.Files, ", "))
				default:
					fmt.Printf("  %s [%s]\n", op.ID, clip.Type)
				}
			}

		case "invite":
			if len(args) == 0 {
				fmt.Println("usage: invite <userId> [message]")
				continue
			}
			message := strings.Join(args[1:], " ")
			if err := a.session.Invite(ctx, args[0], "", message); err != nil {
				fmt.Println("error:", err)
				continue
			}
			if out, ok := a.session.Invites().Outbound(); ok {
				fmt.Printf("invite %s sent, expires in %ds\n", out.InviteID, a.session.Invites().OutboundRemaining())
			}

		case "accept":
			if err := a.session.AcceptInvite(ctx); err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Println("joined", a.session.RoomID())

		case "decline":
			if err := a.session.DeclineInvite(); err != nil {
				fmt.Println("error:", err)
			}

		case "requests":
			for _, req := range a.session.Invites().JoinRequests() {
				fmt.Printf("  %s (%s) wants to join %s\n", req.RequesterName, req.RequesterID, req.RoomID)
			}

		case "request":
			if len(args) != 1 {
				fmt.Println("usage: request <roomId>")
				continue
			}
			if err := a.session.RequestJoin(ctx, args[0]); err != nil {
				fmt.Println("error:", err)
			}

		case "approve":
			if len(args) != 2 {
				fmt.Println("usage: approve <userId> <roomId>")
				continue
			}
			if err := a.session.ApproveJoin(ctx, args[0], args[1]); err != nil {
				fmt.Println("error:", err)
			}

		case "join":
			if len(args) != 1 {
				fmt.Println("usage: join <roomId>")
				continue
			}
			if err := a.joinRoom(ctx, args[0]); err != nil {
				fmt.Println("error:", err)
			}

		case "leave":
			if err := a.session.Leave(ctx); err != nil {
				fmt.Println("error:", err)
			}

		case "exit", "quit":
			return

		default:
			fmt.Println("unknown command; type 'help'")
		}
	}
}

func (a *App) joinRoom(ctx context.Context, roomID string) error {
	return a.session.JoinRoom(ctx, roomID)
}
