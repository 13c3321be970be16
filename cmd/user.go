package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kirsrus/facegate/model"
	"github.com/kirsrus/facegate/store/db"

	"github.com/juju/errors"
	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Список зарегистрированных личностей",
	RunE:  runUserList,
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Регистрация личности",
	Long: `Регистрация личности в базе терминала. Изображения лица добавляются
командой enroll.

Пример:
  facegate user add --dni 12345678 --name "Иван Петров" --role Usuario --password secret`,
	RunE: runUserAdd,
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd)

	userAddCmd.Flags().String("dni", "", "номер документа")
	userAddCmd.Flags().String("name", "", "имя")
	userAddCmd.Flags().String("role", model.RoleUser, "роль ("+model.RoleAdmin+" или "+model.RoleUser+")")
	userAddCmd.Flags().String("password", "", "пароль")
	_ = userAddCmd.MarkFlagRequired("dni")
	_ = userAddCmd.MarkFlagRequired("name")
}

func openDb() (*db.Db, error) {
	return db.NewDb(context.Background(), &db.ConfigDb{
		Log:    log,
		DbFile: cfg.Db.Filename,
	})
}

func runUserList(cmd *cobra.Command, args []string) error {
	dbStore, err := openDb()
	if err != nil {
		return errors.Trace(err)
	}
	defer dbStore.Close()

	users, err := dbStore.Users()
	if err != nil {
		return errors.Trace(err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDNI\tИМЯ\tРОЛЬ\tЛИЦ")
	for _, u := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n", u.ID, u.Dni, u.Name, u.Role, u.Faces)
	}
	return errors.Trace(w.Flush())
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	dni, _ := flags.GetString("dni")
	name, _ := flags.GetString("name")
	role, _ := flags.GetString("role")
	password, _ := flags.GetString("password")

	dbStore, err := openDb()
	if err != nil {
		return errors.Trace(err)
	}
	defer dbStore.Close()

	identity, err := dbStore.AddUser(model.Identity{
		Dni:  dni,
		Name: name,
		Role: role,
	}, password)
	if err != nil {
		return errors.Trace(err)
	}
	fmt.Printf("Зарегистрирована личность ID:%d %s\n", identity.ID, identity.Name)
	return nil
}
