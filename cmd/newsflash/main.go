package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/ensisoft/newsflash/lib/catalog"
	"github.com/ensisoft/newsflash/lib/config"
	"github.com/ensisoft/newsflash/lib/index"
	"github.com/ensisoft/newsflash/lib/network"
	"github.com/ensisoft/newsflash/lib/nntp"
)

// headers fetched per xover range
const overviewChunk = 1000

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "usage: %s <config.json> list\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s <config.json> update <group>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s <config.json> show <group> [age|size|subject|author] [asc|desc]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s <config.json> get <group> <message-id>\n", os.Args[0])
		os.Exit(1)
	}
	cfg, err := config.EnsureJSON(os.Args[1])
	if err != nil {
		log.Fatal("could not load config ", err)
	}
	if lvl, err := log.ParseLevel(cfg.Log); err == nil {
		log.SetLevel(lvl)
	}
	if len(cfg.Servers) == 0 {
		log.Fatal("no servers configured")
	}

	app := newApp(cfg)
	defer app.stop()

	switch os.Args[2] {
	case "list":
		err = app.list()
	case "update":
		if len(os.Args) < 4 {
			log.Fatal("update needs a group name")
		}
		err = app.update(os.Args[3])
	case "show":
		if len(os.Args) < 4 {
			log.Fatal("show needs a group name")
		}
		column, order := "age", "desc"
		if len(os.Args) > 4 {
			column = os.Args[4]
		}
		if len(os.Args) > 5 {
			order = os.Args[5]
		}
		err = app.show(os.Args[3], column, order)
	case "get":
		if len(os.Args) < 5 {
			log.Fatal("get needs a group name and a message-id")
		}
		err = app.get(os.Args[3], os.Args[4])
	default:
		log.Fatal("unknown command ", os.Args[2])
	}
	if err != nil {
		log.Fatal(err)
	}
}

// connection pool plus completion plumbing for one server
type app struct {
	cfg     *config.Config
	queue   *nntp.CmdQueue
	conns   []*nntp.Connection
	done    chan *nntp.CmdList
	errs    chan *nntp.Error
	started bool
}

func (a *app) OnConnected(name string) {
	log.WithFields(log.Fields{
		"pkg":  "newsflash",
		"name": name,
	}).Info("connection ready")
}

func (a *app) OnDone(cl *nntp.CmdList) {
	a.done <- cl
}

func (a *app) OnError(name string, err *nntp.Error) {
	a.errs <- err
}

func newApp(cfg *config.Config) *app {
	a := &app{
		cfg:   cfg,
		queue: nntp.NewCmdQueue(),
		done:  make(chan *nntp.CmdList, 16),
		errs:  make(chan *nntp.Error, 16),
	}
	srv := cfg.Servers[0]
	var dialer network.Dialer
	if srv.TLS {
		dialer = &network.TLSDialer{Config: network.NewTLSConfig()}
	} else {
		dialer = &network.TCPDialer{}
	}
	num := srv.Connections
	if num < 1 {
		num = 1
	}
	for i := 0; i < num; i++ {
		conn := &nntp.Connection{
			Name:         fmt.Sprintf("%s/%d", srv.Name, i),
			Addr:         srv.Addr,
			Dialer:       dialer,
			Queue:        a.queue,
			Hooks:        a,
			Pipelining:   srv.Pipelining,
			Compression:  srv.Compression,
			PingInterval: srv.PingInterval,
		}
		if srv.Username != "" {
			user, pass := srv.Username, srv.Password
			conn.Auth = func() (string, string) {
				return user, pass
			}
		}
		a.conns = append(a.conns, conn)
	}
	return a
}

// launch the connection pool, offline commands never dial out
func (a *app) start() {
	if a.started {
		return
	}
	a.started = true
	for _, c := range a.conns {
		c.Start()
	}
}

func (a *app) stop() {
	if !a.started {
		return
	}
	for _, c := range a.conns {
		c.Stop()
	}
	for _, c := range a.conns {
		c.Join()
	}
}

// run one cmdlist to completion
func (a *app) run(cl *nntp.CmdList) (*nntp.CmdList, error) {
	a.start()
	a.queue.Enqueue(cl)
	select {
	case got := <-a.done:
		return got, nil
	case err := <-a.errs:
		return nil, err
	}
}

// fetch and print the newsgroup listing
func (a *app) list() error {
	cl, err := a.run(nntp.NewListingList())
	if err != nil {
		return err
	}
	if cl.Buffers[0].Status != nntp.StatusSuccess {
		return fmt.Errorf("listing failed: %s", cl.Buffers[0].Status)
	}
	for _, g := range nntp.ParseListing(cl.Buffers[0]) {
		fmt.Printf("%-50s %12d articles\n", g.Name, g.Count)
	}
	return nil
}

// fetch new headers for a group into its catalog volume
func (a *app) update(group string) error {
	cl, err := a.run(nntp.NewGroupInfoList(group))
	if err != nil {
		return err
	}
	info, err := nntp.ParseGroupInfo(cl.Buffers[0])
	if err != nil {
		return fmt.Errorf("no such group %s", group)
	}
	log.WithFields(log.Fields{
		"pkg":   "newsflash",
		"group": group,
		"low":   info.Low,
		"high":  info.High,
	}).Info("updating group")

	if err := os.MkdirAll(a.cfg.DataDir, 0755); err != nil {
		return err
	}
	db, err := catalog.Open(filepath.Join(a.cfg.DataDir, group+".catalog"))
	if err != nil {
		return err
	}
	defer db.Close()
	ids, err := catalog.OpenIDList(filepath.Join(a.cfg.DataDir, group+".idlist"))
	if err != nil {
		return err
	}
	defer ids.Close()
	if ids.Size() == 0 {
		// slot 0 is reserved so a zero idbkey means unallocated
		ids.Resize(1)
	}

	// resume from the highest article number already on disk
	first := uint64(info.Low)
	for it := db.Iterate(); it.Next(); {
		if n := it.Article().Number; n >= first {
			first = n + 1
		}
	}

	// multipart delta bookkeeping on combine
	db.OnCombine = func(existing, incoming *catalog.Article) {
		if existing.PartsTotal == 0 {
			return
		}
		if existing.IDBKey == 0 {
			existing.IDBKey = uint32(ids.Size())
			ids.Resize(ids.Size() + int(existing.PartsTotal))
			if no := existing.PartNo(); no != 0 && no <= existing.PartsTotal {
				ids.Set(int(existing.IDBKey)+int(no)-1, 0)
			}
		}
		if no := incoming.PartNo(); no != 0 && no <= existing.PartsTotal {
			delta := int16(int64(incoming.Number) - int64(existing.Number))
			ids.Set(int(existing.IDBKey)+int(no)-1, delta)
		}
	}

	var stored uint32
	db.OnWrite = func(ar *catalog.Article, slot uint32) {
		stored++
	}

	for lo := first; lo <= uint64(info.High); lo += overviewChunk {
		hi := lo + overviewChunk - 1
		if hi > uint64(info.High) {
			hi = uint64(info.High)
		}
		cl, err := a.run(nntp.NewXOverList(group, []string{fmt.Sprintf("%d-%d", lo, hi)}))
		if err != nil {
			return err
		}
		if !cl.IsGood() {
			return fmt.Errorf("group %s not available on server", group)
		}
		for _, b := range cl.Buffers {
			if b.Status != nntp.StatusSuccess {
				log.WithFields(log.Fields{
					"pkg":    "newsflash",
					"status": b.Status.String(),
				}).Warn("overview range failed")
				continue
			}
			for _, line := range bytes.Split(b.Content, []byte("\r\n")) {
				if len(line) == 0 || (len(line) == 1 && line[0] == '.') {
					continue
				}
				ar, err := catalog.ParseOverview(line)
				if err != nil {
					continue
				}
				ar.Index = db.Size()
				if err := db.Store(ar); err != nil {
					return err
				}
			}
		}
		if err := db.Flush(); err != nil {
			return err
		}
		if err := ids.Flush(); err != nil {
			return err
		}
	}
	log.WithFields(log.Fields{
		"pkg":    "newsflash",
		"group":  group,
		"stored": stored,
		"total":  db.Size(),
	}).Info("update complete")
	return nil
}

// print the catalog for a group sorted through the index
func (a *app) show(group, column, order string) error {
	db, err := catalog.Open(filepath.Join(a.cfg.DataDir, group+".catalog"))
	if err != nil {
		return err
	}
	defer db.Close()

	// the loader resolves index items back to articles, one catalog so
	// the key is unused and the item index is the table slot
	cache := make(map[uint32]*catalog.Article, db.Size())
	x := index.New(func(key, idx uint32) *catalog.Article {
		return cache[idx]
	})
	for slot := uint32(0); slot < catalog.CatalogSize; slot++ {
		ar, err := db.Load(slot)
		if err != nil {
			continue
		}
		cache[slot] = ar
		x.Insert(ar, 0, slot)
	}

	col, ok := map[string]index.Column{
		"age":     index.SortByAge,
		"size":    index.SortBySize,
		"subject": index.SortBySubject,
		"author":  index.SortByAuthor,
	}[column]
	if !ok {
		return fmt.Errorf("unknown sort column %s", column)
	}
	ord := index.Descending
	if order == "asc" {
		ord = index.Ascending
	}
	x.Sort(col, ord)

	for i := 0; i < x.Size(); i++ {
		ar := x.Article(i)
		mark := " "
		if ar.Is(catalog.FlagBroken) {
			mark = "!"
		}
		fmt.Printf("%s %-8s %10d  %3d/%-3d  %s\n",
			mark, ar.Type, ar.Bytes, ar.PartsAvail, ar.PartsTotal, ar.Subject)
	}
	return nil
}

// fetch one article body and write it to stdout
func (a *app) get(group, msgid string) error {
	cl, err := a.run(nntp.NewBodyList([]string{group}, []string{msgid}))
	if err != nil {
		return err
	}
	if !cl.IsGood() {
		return fmt.Errorf("group %s not available on server", group)
	}
	b := cl.Buffers[0]
	switch b.Status {
	case nntp.StatusSuccess:
		os.Stdout.Write(b.Content)
		return nil
	case nntp.StatusDmca:
		return fmt.Errorf("article %s taken down", msgid)
	default:
		return fmt.Errorf("article %s not available", msgid)
	}
}
