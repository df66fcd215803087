package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"ticketkeeper/internal/common"
	"ticketkeeper/internal/services"
)

const travelDateLayout = "2006-01-02"

// Add interactively collects ticket fields and creates the record.
func (a *App) Add(ctx context.Context) error {
	number, err := GetSimpleText(a.reader, "Ticket number (optional)", os.Stdout)
	if err != nil {
		fmt.Println(err.Error())
		return err
	}

	dateStr, err := GetSimpleText(a.reader, "Travel date (YYYY-MM-DD)", os.Stdout)
	if err != nil {
		fmt.Println(err.Error())
		return err
	}
	travelDate, err := time.Parse(travelDateLayout, dateStr)
	if err != nil {
		fmt.Println("Invalid date, expected YYYY-MM-DD")
		return err
	}

	from, err := GetSimpleText(a.reader, "From station", os.Stdout)
	if err != nil {
		fmt.Println(err.Error())
		return err
	}

	to, err := GetSimpleText(a.reader, "To station", os.Stdout)
	if err != nil {
		fmt.Println(err.Error())
		return err
	}

	notes, err := GetMultiline(a.reader, "Notes", os.Stdout)
	if err != nil {
		fmt.Println(err.Error())
		return err
	}

	t, err := a.tickets.Add(ctx, services.TicketRequest{
		Number:      number,
		TravelDate:  travelDate,
		FromStation: from,
		ToStation:   to,
		Notes:       notes,
	})
	if err != nil {
		if errors.Is(err, common.ErrDuplicateNumber) {
			fmt.Println("A ticket with this number already exists")
			return err
		}
		fmt.Println(err.Error())
		return err
	}

	fmt.Printf("Created %s\n", t.ID)
	return nil
}

// List prints all visible tickets, newest travel date first.
func (a *App) List(ctx context.Context) error {
	all, err := a.tickets.List(ctx)
	if err != nil {
		fmt.Println(err.Error())
		return err
	}

	if len(all) == 0 {
		fmt.Println("No tickets yet")
		return nil
	}

	for _, t := range all {
		number := t.Number
		if number == "" {
			number = "-"
		}
		fmt.Printf("%s  %s  %-12s %s -> %s  [%s]\n",
			t.ID, t.TravelDate.Format(travelDateLayout), number,
			t.FromStation, t.ToStation, t.SyncStatus)
	}
	return nil
}

// Show prints one ticket in full.
func (a *App) Show(ctx context.Context, id string) error {
	t, err := a.tickets.Get(ctx, id)
	if err != nil {
		if services.IsNotFound(err) {
			fmt.Println("Not found:", id)
			return err
		}
		fmt.Println(err.Error())
		return err
	}

	fmt.Println("ID:         ", t.ID)
	fmt.Println("Number:     ", t.Number)
	fmt.Println("Travel date:", t.TravelDate.Format(travelDateLayout))
	fmt.Println("From:       ", t.FromStation)
	fmt.Println("To:         ", t.ToStation)
	if t.Notes != "" {
		fmt.Println("Notes:      ", t.Notes)
	}
	if t.HasInlineImage() {
		fmt.Println("Image:       attached (not uploaded yet)")
	} else if t.ImageRef != "" {
		fmt.Println("Image:      ", t.ImageRef)
	}
	fmt.Println("Updated:    ", t.UpdatedAt.Format(time.RFC3339))
	fmt.Println("Status:     ", t.SyncStatus)
	return nil
}

// Delete soft-deletes a ticket.
func (a *App) Delete(ctx context.Context, id string) error {
	if err := a.tickets.Delete(ctx, id); err != nil {
		if services.IsNotFound(err) {
			fmt.Println("Not found:", id)
			return err
		}
		fmt.Println(err.Error())
		return err
	}
	fmt.Println("Deleted", id)
	return nil
}

// AttachImage reads an image file from disk, stores it inline on the ticket
// and tries to push the blob out of band right away. A failed transfer is not
// fatal; the next attach or sync retries it.
func (a *App) AttachImage(ctx context.Context, id string) error {
	path, err := GetSimpleText(a.reader, "Path to image file", os.Stdout)
	if err != nil {
		fmt.Println(err.Error())
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Println(err.Error())
		return err
	}

	if err := a.tickets.AttachImage(ctx, id, data); err != nil {
		if services.IsNotFound(err) {
			fmt.Println("Not found:", id)
			return err
		}
		fmt.Println(err.Error())
		return err
	}
	fmt.Println("Image attached")

	if err := a.tickets.UploadImage(ctx, id); err != nil {
		fmt.Println("Upload postponed:", err.Error())
		return nil
	}
	fmt.Println("Image uploaded")
	return nil
}

// Sync runs a sync pass immediately.
func (a *App) Sync(ctx context.Context) error {
	if err := a.syncer.Sync(ctx); err != nil {
		fmt.Println(err.Error())
		return err
	}
	fmt.Println("Sync done")
	return nil
}

// Login stores a bearer token for the remote store. The token is obtained
// externally (from the storage provider's console or an identity broker) and
// pasted here without echo.
func (a *App) Login(ctx context.Context) error {
	token, err := GetSecret("Paste access token", os.Stdout)
	if err != nil {
		fmt.Println(err.Error())
		return err
	}

	if err := a.creds.SetToken(ctx, string(token)); err != nil {
		fmt.Println(err.Error())
		return err
	}

	if !a.creds.IsAuthorized(ctx) {
		fmt.Println("Token stored but looks expired or malformed")
		return nil
	}

	fmt.Println("Success!")
	return nil
}

// Logout drops the stored token.
func (a *App) Logout(ctx context.Context) error {
	if err := a.creds.ClearToken(ctx); err != nil {
		fmt.Println(err.Error())
		return err
	}
	fmt.Println("Logged out")
	return nil
}
