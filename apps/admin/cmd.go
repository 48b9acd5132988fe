package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/plp/edmodule/core/edmodule"
	"github.com/plp/edmodule/core/progress"
	"github.com/plp/edmodule/core/promo"
	"github.com/plp/edmodule/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sql.DB
	usrSvc   *user.Service
	modSvc   *edmodule.Service
	promoSvc *promo.Service
	syncer   *progress.Syncer
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  adduser -username USERNAME -email EMAIL [-name NAME] [-staff] - add a user, or update an existing one")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Fprintln(cli.out, "  syncprogress [-module CODE] - pull the learning platform progress of active enrollments")
	fmt.Fprintln(cli.out, "  createpromo -module CODE|-course ID -till YYYY-MM-DD (-percent P|-price X) [-max N] [-code CODE] [-exclusive] - create a promo code")
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserStaff := addUserCmd.Bool("staff", false, "Whether the user is a staff member.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	syncCmd := flag.NewFlagSet("syncprogress", flag.ContinueOnError)
	syncModule := syncCmd.String("module", "", "Only sync the enrollments of this module.")

	promoCmd := flag.NewFlagSet("createpromo", flag.ContinueOnError)
	promoModule := promoCmd.String("module", "", "The code of the module the promo code applies to.")
	promoCourse := promoCmd.Int("course", 0, "The ID of the course the promo code applies to.")
	promoTill := promoCmd.String("till", "", "The last day the promo code can be used (YYYY-MM-DD).")
	promoPercent := promoCmd.String("percent", "", "The discount percentage.")
	promoPrice := promoCmd.String("price", "", "The fixed price.")
	promoMax := promoCmd.Int("max", 1, "How many times the promo code can be used.")
	promoCode := promoCmd.String("code", "", "The promo code; generated when empty.")
	promoExclusive := promoCmd.Bool("exclusive", false, "Do not stack the promo code with the module discount.")

	for _, fs := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, syncCmd, promoCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, pwd, *addUserStaff)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "syncprogress":
		if err := syncCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.syncProgress(*syncModule)

	case "createpromo":
		if err := promoCmd.Parse(args[2:]); err != nil {
			return err
		}
		if (*promoModule == "") == (*promoCourse == 0) || *promoTill == "" || (*promoPercent == "") == (*promoPrice == "") {
			promoCmd.Usage()
			return errHelp
		}
		till, err := time.Parse("2006-01-02", *promoTill)
		if err != nil {
			return fmt.Errorf("invalid date %q: must be of form YYYY-MM-DD", *promoTill)
		}
		return cli.createPromo(promoArgs{
			moduleCode: *promoModule,
			courseID:   *promoCourse,
			activeTill: till,
			percent:    *promoPercent,
			price:      *promoPrice,
			maxUsage:   *promoMax,
			code:       *promoCode,
			exclusive:  *promoExclusive,
		})

	default:
		cli.printUsage()
		return errHelp
	}
}
