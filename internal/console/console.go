// Package console is a line-oriented terminal view over a shop.Store.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/techshop/internal/catalogexport"
	"github.com/xenking/techshop/internal/domain/order"
	"github.com/xenking/techshop/internal/domain/product"
	"github.com/xenking/techshop/internal/domain/session"
	"github.com/xenking/techshop/internal/shop"
	"github.com/xenking/techshop/pkg/health"
	"github.com/xenking/techshop/pkg/roundtrip"
)

const prompt = "> "

// Console executes commands against a Store and prints the results.
type Console struct {
	store  *shop.Store
	health *health.Monitor
	out    io.Writer
	lg     *zap.Logger
}

// New creates a Console writing to out. monitor may be nil, in which case
// the status command reports that reachability is not tracked.
func New(store *shop.Store, monitor *health.Monitor, out io.Writer, lg *zap.Logger) *Console {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Console{store: store, health: monitor, out: out, lg: lg}
}

type command struct {
	usage string
	help  string
	run   func(c *Console, ctx context.Context, args []string) error
}

var errUsage = errors.New("usage")

var commands map[string]command

// order in which help lists commands
var commandNames = []string{
	"products", "search", "categories", "reload",
	"add", "remove", "qty", "clear", "cart",
	"login", "register", "logout", "whoami", "profile",
	"orders", "activity", "dashboard",
	"checkout", "export", "import", "status", "help", "quit",
}

func init() {
	commands = map[string]command{
		"products":   {usage: "products [category]", help: "List the catalog", run: (*Console).products},
		"search":     {usage: "search <term>", help: "Find products by name or description", run: (*Console).search},
		"categories": {usage: "categories", help: "List categories", run: (*Console).categories},
		"reload":     {usage: "reload", help: "Reload the catalog", run: (*Console).reload},
		"add":        {usage: "add <id>", help: "Add one unit to the cart", run: (*Console).add},
		"remove":     {usage: "remove <id>", help: "Remove a line from the cart", run: (*Console).remove},
		"qty":        {usage: "qty <id> <n>", help: "Set the quantity of a line", run: (*Console).qty},
		"clear":      {usage: "clear", help: "Empty the cart", run: (*Console).clear},
		"cart":       {usage: "cart", help: "Show the cart", run: (*Console).cart},
		"login":      {usage: "login <email> <password>", help: "Sign in", run: (*Console).login},
		"register":   {usage: "register <name> <email> <password>", help: "Create an account", run: (*Console).register},
		"logout":     {usage: "logout", help: "Sign out", run: (*Console).logout},
		"whoami":     {usage: "whoami", help: "Show the session", run: (*Console).whoami},
		"profile":    {usage: "profile [name=..] [email=..] [password=..]", help: "Update your profile", run: (*Console).profile},
		"orders":     {usage: "orders", help: "Show order history", run: (*Console).orders},
		"activity":   {usage: "activity", help: "Show account activity", run: (*Console).activity},
		"dashboard":  {usage: "dashboard", help: "Show orders and activity", run: (*Console).dashboard},
		"checkout":   {usage: "checkout", help: "Pay for the cart", run: (*Console).checkout},
		"export":     {usage: "export <path>", help: "Save the catalog as gzip JSON", run: (*Console).export},
		"import":     {usage: "import <path>", help: "Replace the catalog with an exported file", run: (*Console).importCatalog},
		"status":     {usage: "status", help: "Check backend reachability", run: (*Console).status},
		"help":       {usage: "help", help: "Show this help", run: (*Console).help},
		"quit":       {usage: "quit", help: "Exit"},
	}
}

// Run reads commands from in until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	c.printf("Type 'help' for commands.\n%s", prompt)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return errors.Wrap(err, "read input")
					}
				default:
				}
				return nil
			}
			if c.Exec(ctx, line) {
				return nil
			}
			c.printf("%s", prompt)
		}
	}
}

// Exec runs a single command line and reports whether the console should
// exit. Backend requests made by one command share a request ID.
func (c *Console) Exec(ctx context.Context, line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	name, args := strings.ToLower(fields[0]), fields[1:]
	if name == "quit" || name == "exit" {
		return true
	}

	cmd, ok := commands[name]
	if !ok {
		c.printf("Unknown command %q. Type 'help' for commands.\n", name)
		return false
	}
	requestID := uuid.New().String()
	ctx = roundtrip.WithRequestID(ctx, requestID)
	if err := cmd.run(c, ctx, args); err != nil {
		if errors.Is(err, errUsage) {
			c.printf("Usage: %s\n", cmd.usage)
			return false
		}
		c.lg.Debug("Command failed",
			zap.String("command", name),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		c.printf("%s\n", failureMessage(err))
	}
	return false
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, shop.ErrEmptyCart):
		return "Your cart is empty."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Cancelled."
	default:
		return "Something went wrong. Please try again."
	}
}

// --- Catalog ---

func (c *Console) products(_ context.Context, args []string) error {
	c.printProducts(c.store.ProductsIn(strings.Join(args, " ")))
	return nil
}

func (c *Console) search(_ context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	c.printProducts(c.store.Search(strings.Join(args, " ")))
	return nil
}

func (c *Console) printProducts(products []product.Product) {
	if len(products) == 0 {
		c.printf("No products.\n")
		return
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE\tCATEGORY")
	for _, p := range products {
		fmt.Fprintf(tw, "%d\t%s\t$%s\t%s\n", p.ID, p.Name, p.Price.StringFixed(2), p.Category)
	}
	_ = tw.Flush()
}

func (c *Console) categories(_ context.Context, _ []string) error {
	for _, name := range c.store.Categories() {
		c.printf("%s (%d)\n", name, len(c.store.ProductsIn(name)))
	}
	return nil
}

func (c *Console) reload(ctx context.Context, _ []string) error {
	c.store.LoadCatalog(ctx)
	c.printf("%d products.\n", len(c.store.Catalog()))
	return nil
}

func (c *Console) export(_ context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	catalog := c.store.Catalog()
	if err := catalogexport.WriteFile(args[0], catalog); err != nil {
		return err
	}
	c.printf("Exported %d products to %s.\n", len(catalog), args[0])
	return nil
}

func (c *Console) importCatalog(_ context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	products, err := catalogexport.ReadFile(args[0])
	if err != nil {
		return err
	}
	c.store.ReplaceCatalog(products)
	c.printf("Imported %d products from %s.\n", len(products), args[0])
	return nil
}

// --- Cart ---

func (c *Console) add(_ context.Context, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	p, ok := product.Find(c.store.Catalog(), id)
	if !ok {
		c.printf("No product with id %d.\n", id)
		return nil
	}
	c.store.AddToCart(p)
	c.printf("%s added to cart.\n", p.Name)
	return nil
}

func (c *Console) remove(ctx context.Context, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	c.store.RemoveFromCart(id)
	return c.cart(ctx, nil)
}

func (c *Console) qty(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	id, err := parseID(args[:1])
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return errUsage
	}
	c.store.UpdateQuantity(id, n)
	return c.cart(ctx, nil)
}

func (c *Console) clear(_ context.Context, _ []string) error {
	c.store.ClearCart()
	c.printf("Cart cleared.\n")
	return nil
}

func (c *Console) cart(_ context.Context, _ []string) error {
	snap := c.store.Snapshot()
	if snap.Cart.IsEmpty() {
		c.printf("Your cart is empty.\n")
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tQTY\tSUBTOTAL")
	for _, l := range snap.Cart.Lines() {
		fmt.Fprintf(tw, "%d\t%s\t%d\t$%s\n", l.Product.ID, l.Product.Name, l.Quantity, l.Subtotal().StringFixed(2))
	}
	fmt.Fprintf(tw, "\tTotal\t%d\t$%s\n", snap.TotalItems(), snap.TotalPrice().StringFixed(2))
	return tw.Flush()
}

func (c *Console) checkout(ctx context.Context, _ []string) error {
	if c.store.Cart().IsEmpty() {
		return shop.ErrEmptyCart
	}
	c.printf("Processing payment...\n")
	receipt, err := c.store.Checkout(ctx)
	if err != nil {
		return err
	}
	c.printf("Payment processed. Receipt %s: %d items, $%s.\n",
		receipt.ID, receipt.TotalItems, receipt.Total.StringFixed(2))
	if receipt.Order != nil {
		c.printf("Order #%d is %s.\n", receipt.Order.ID, receipt.Order.Status)
	}
	return nil
}

// --- Session ---

func (c *Console) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	if !c.store.Login(ctx, args[0], args[1]) {
		c.printf("Invalid credentials.\n")
		return nil
	}
	c.printf("Welcome, %s!\n", c.store.User().Name)
	return nil
}

func (c *Console) register(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return errUsage
	}
	// The name may contain spaces; email and password may not.
	n := len(args)
	name := strings.Join(args[:n-2], " ")
	if !c.store.Register(ctx, name, args[n-2], args[n-1]) {
		c.printf("Registration failed.\n")
		return nil
	}
	c.printf("Welcome, %s!\n", name)
	return nil
}

func (c *Console) logout(ctx context.Context, _ []string) error {
	c.store.Logout(ctx)
	c.printf("Signed out.\n")
	return nil
}

func (c *Console) whoami(_ context.Context, _ []string) error {
	snap := c.store.Snapshot()
	switch {
	case snap.User != nil:
		c.printf("%s <%s>\n", snap.User.Name, snap.User.Email)
	case snap.Authenticated:
		c.printf("Signed in (account details unavailable).\n")
	default:
		c.printf("Guest.\n")
	}
	return nil
}

func (c *Console) profile(ctx context.Context, args []string) error {
	var upd session.ProfileUpdate
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return errUsage
		}
		switch key {
		case "name":
			upd.Name = value
		case "email":
			upd.Email = value
		case "password":
			upd.Password = value
		default:
			return errUsage
		}
	}
	if upd.IsEmpty() {
		return errUsage
	}
	if !c.store.UpdateProfile(ctx, upd) {
		c.printf("Profile update failed.\n")
		return nil
	}
	c.printf("Profile updated.\n")
	return c.whoami(ctx, nil)
}

// --- Account ---

func (c *Console) orders(ctx context.Context, _ []string) error {
	c.printOrders(c.store.FetchOrders(ctx))
	return nil
}

func (c *Console) activity(ctx context.Context, _ []string) error {
	c.printActivity(c.store.FetchActivity(ctx))
	return nil
}

func (c *Console) dashboard(ctx context.Context, _ []string) error {
	d := c.store.Dashboard(ctx)
	c.printActivity(d.Activity)
	c.printOrders(d.Orders)
	return nil
}

func (c *Console) printOrders(orders []order.Order) {
	if len(orders) == 0 {
		c.printf("No orders.\n")
		return
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tDATE\tITEMS\tTOTAL\tSTATUS")
	for _, o := range orders {
		items := 0
		for _, it := range o.Items {
			items += it.Quantity
		}
		fmt.Fprintf(tw, "#%d\t%s\t%d\t$%s\t%s\n",
			o.ID, o.CreatedAt.Format(time.DateOnly), items, o.TotalPrice.StringFixed(2), o.Status)
	}
	_ = tw.Flush()
}

func (c *Console) printActivity(a *order.Activity) {
	if a == nil {
		c.printf("Activity unavailable.\n")
		return
	}
	last := "never"
	if a.LastOrderDate != nil {
		last = a.LastOrderDate.Format(time.DateOnly)
	}
	c.printf("Orders: %d, last order: %s, member since %s.\n",
		a.TotalOrders, last, a.AccountCreated.Format(time.DateOnly))
}

func (c *Console) status(ctx context.Context, _ []string) error {
	if c.health == nil {
		c.printf("Backend reachability is not tracked.\n")
		return nil
	}
	for _, s := range c.health.CheckNow(ctx) {
		state := "reachable"
		if !s.Healthy {
			state = "unreachable"
		}
		if s.LastError != nil {
			c.printf("%s: %s (last check failed: %v)\n", s.Name, state, s.LastError)
			continue
		}
		c.printf("%s: %s\n", s.Name, state)
	}
	if c.health.Healthy() {
		c.printf("All checks passing.\n")
	} else {
		c.printf("Some checks failing.\n")
	}
	return nil
}

func (c *Console) help(_ context.Context, _ []string) error {
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	for _, name := range commandNames {
		cmd := commands[name]
		fmt.Fprintf(tw, "%s\t%s\n", cmd.usage, cmd.help)
	}
	return tw.Flush()
}

func (c *Console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func parseID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, errUsage
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, errUsage
	}
	return id, nil
}
