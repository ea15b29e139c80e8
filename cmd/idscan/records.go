package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/joseph-ayodele/citizen-docs/constants"
	"github.com/joseph-ayodele/citizen-docs/internal/apiclient"
	"github.com/joseph-ayodele/citizen-docs/internal/entity"
	"github.com/joseph-ayodele/citizen-docs/internal/normalize"
)

// subcommand returns the first positional argument and checks it is one of names.
func subcommand(fs *pflag.FlagSet, names ...string) (string, error) {
	verb, err := arg(fs, 0, "action")
	if err != nil {
		return "", err
	}
	for _, n := range names {
		if verb == n {
			return verb, nil
		}
	}
	return "", usagef("unknown action %q", verb)
}

var citizensCmd = command{
	summary: "search and manage citizens",
	usage:   "search [QUERY] | get <id> | create | update <id> | delete <id>",
	flags: func(fs *pflag.FlagSet) {
		fs.String("name", "", "full name")
		fs.String("dob", "", "date of birth, DD/MM/YYYY or YYYY-MM-DD")
		fs.String("gender", "", "Nam/Nữ or male/female")
		fs.String("nationality", "", "nationality")
	},
	run: func(ctx context.Context, a *app, fs *pflag.FlagSet) error {
		verb, err := subcommand(fs, "search", "get", "create", "update", "delete")
		if err != nil {
			return err
		}
		switch verb {
		case "search":
			list, err := a.client.SearchCitizens(ctx, fs.Arg(1))
			if err != nil {
				return err
			}
			printCitizens(a.out, list...)
		case "get":
			id, err := arg(fs, 1, "id")
			if err != nil {
				return err
			}
			c, err := a.client.GetCitizen(ctx, id)
			if err != nil {
				return err
			}
			printCitizens(a.out, c)
		case "create":
			var in entity.Citizen
			in.Name, _ = fs.GetString("name")
			if in.Name == "" {
				return usagef("--name is required")
			}
			in.Nationality, _ = fs.GetString("nationality")
			g, _ := fs.GetString("gender")
			in.Gender = constants.NormalizeGender(g)
			dob, _ := fs.GetString("dob")
			if dob != "" {
				if in.DateOfBirth, err = normalize.Date(dob); err != nil {
					return err
				}
			}
			c, err := a.client.CreateCitizen(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Created citizen %s\n", c.ID)
		case "update":
			id, err := arg(fs, 1, "id")
			if err != nil {
				return err
			}
			in, err := citizenUpdate(fs)
			if err != nil {
				return err
			}
			c, err := a.client.UpdateCitizen(ctx, id, in)
			if err != nil {
				return err
			}
			printCitizens(a.out, c)
		case "delete":
			id, err := arg(fs, 1, "id")
			if err != nil {
				return err
			}
			if err := a.client.DeleteCitizen(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted citizen %s\n", id)
		}
		return nil
	},
}

// citizenUpdate sends only the flags that were given.
func citizenUpdate(fs *pflag.FlagSet) (entity.CitizenUpdate, error) {
	var in entity.CitizenUpdate
	if fs.Changed("name") {
		v, _ := fs.GetString("name")
		in.Name = &v
	}
	if fs.Changed("nationality") {
		v, _ := fs.GetString("nationality")
		in.Nationality = &v
	}
	if fs.Changed("gender") {
		v, _ := fs.GetString("gender")
		g := constants.NormalizeGender(v)
		if g == "" {
			return in, usagef("unknown gender %q", v)
		}
		in.Gender = &g
	}
	if fs.Changed("dob") {
		v, _ := fs.GetString("dob")
		iso, err := normalize.Date(v)
		if err != nil {
			return in, err
		}
		in.DateOfBirth = &iso
	}
	if in == (entity.CitizenUpdate{}) {
		return in, usagef("nothing to update")
	}
	return in, nil
}

func printCitizens(w io.Writer, list ...entity.Citizen) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No citizens")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tBORN\tGENDER\tNATIONALITY")
	for _, c := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.DateOfBirth, c.Gender, c.Nationality)
	}
	tw.Flush()
}

var documentsCmd = command{
	summary: "list and inspect stored documents",
	usage:   "list | get <id> | delete <id> | record <type> <citizen-id>",
	run: func(ctx context.Context, a *app, fs *pflag.FlagSet) error {
		verb, err := subcommand(fs, "list", "get", "delete", "record")
		if err != nil {
			return err
		}
		switch verb {
		case "list":
			list, err := a.client.ListDocuments(ctx)
			if err != nil {
				return err
			}
			printDocuments(a.out, list...)
		case "get":
			id, err := arg(fs, 1, "id")
			if err != nil {
				return err
			}
			d, err := a.client.GetDocument(ctx, id)
			if err != nil {
				return err
			}
			printDocuments(a.out, d)
		case "delete":
			id, err := arg(fs, 1, "id")
			if err != nil {
				return err
			}
			if err := a.client.DeleteDocument(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted document %s\n", id)
		case "record":
			raw, err := arg(fs, 1, "type")
			if err != nil {
				return err
			}
			docType, ok := constants.ParseDocType(raw)
			if !ok {
				return usagef("unknown document type %q", raw)
			}
			citizenID, err := arg(fs, 2, "citizen-id")
			if err != nil {
				return err
			}
			rec, err := a.client.RecordByCitizen(ctx, docType, citizenID)
			if err != nil {
				return err
			}
			printMap(a.out, rec)
		}
		return nil
	},
}

func printDocuments(w io.Writer, list ...entity.Document) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No documents")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tCITIZEN\tSTATUS\tISSUED\tEXPIRES")
	for _, d := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", d.ID, d.DocumentType, d.CitizenID, d.Status, d.IssueDate, d.ExpireDate)
	}
	tw.Flush()
}

func printMap(w io.Writer, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%v\n", k, m[k])
	}
	tw.Flush()
}

var usersCmd = command{
	summary: "administer accounts (admin only)",
	usage:   "list | set-role <id> <role> | activate <id> | deactivate <id> | delete <id>",
	run: func(ctx context.Context, a *app, fs *pflag.FlagSet) error {
		verb, err := subcommand(fs, "list", "set-role", "activate", "deactivate", "delete")
		if err != nil {
			return err
		}
		if verb == "list" {
			list, err := a.client.ListUsers(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUSERNAME\tEMAIL\tROLE\tACTIVE")
			for _, u := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", u.ID, u.Username, u.Email, u.Role, u.IsActive)
			}
			return tw.Flush()
		}

		id, err := arg(fs, 1, "id")
		if err != nil {
			return err
		}
		var in apiclient.UserUpdate
		switch verb {
		case "delete":
			if err := a.client.DeleteUser(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted user %s\n", id)
			return nil
		case "set-role":
			role, err := arg(fs, 2, "role")
			if err != nil {
				return err
			}
			in.Role = &role
		case "activate", "deactivate":
			active := verb == "activate"
			in.IsActive = &active
		}
		u, err := a.client.UpdateUser(ctx, id, in)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s role=%s active=%t\n", u.Username, u.Role, u.IsActive)
		return nil
	},
}
