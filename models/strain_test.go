package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrainAliases(t *testing.T) {
	strain := NewStrain("Streptomyces_sp_CNB091")
	strain.AddAlias("CNB091")
	strain.AddAlias("GCF_000514775")
	strain.AddAlias("CNB091") // Duplikat
	strain.AddAlias("")       // leer wird ignoriert
	strain.AddAlias("Streptomyces_sp_CNB091") // eigene ID wird ignoriert

	assert.Equal(t, []string{"CNB091", "GCF_000514775"}, strain.Aliases())
	assert.Equal(t, []string{"Streptomyces_sp_CNB091", "CNB091", "GCF_000514775"}, strain.Names())
}

func TestStrainCollectionLookup(t *testing.T) {
	c := NewStrainCollection()
	strain := NewStrain("CNB091")
	strain.AddAlias("CNB091.mzXML")
	c.Add(strain)

	assert.Same(t, strain, c.Lookup("CNB091"))
	assert.Same(t, strain, c.Lookup("CNB091.mzXML"))
	assert.Nil(t, c.Lookup("unbekannt"))
	assert.True(t, c.Contains(strain))
	assert.False(t, c.Contains(NewStrain("anders")))
	assert.False(t, c.Contains(nil))
	assert.Equal(t, 1, c.Len())
}

func TestStrainCollectionAddMergesAliases(t *testing.T) {
	c := NewStrainCollection()

	first := NewStrain("CNB091")
	first.AddAlias("alias-a")
	c.Add(first)

	second := NewStrain("CNB091")
	second.AddAlias("alias-b")
	c.Add(second)

	require.Equal(t, 1, c.Len())
	assert.Same(t, first, c.Lookup("alias-b"))
	assert.ElementsMatch(t, []string{"alias-a", "alias-b"}, first.Aliases())

	// dieselbe Instanz erneut einzufügen ändert nichts
	c.Add(first)
	assert.Equal(t, 1, c.Len())
}

func TestStrainCollectionFileRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strain_mappings.csv")

	out := NewStrainCollection()
	a := NewStrain("CNB091")
	a.AddAlias("CNB091.mzXML")
	a.AddAlias("GCF_000514775")
	out.Add(a)
	out.Add(NewStrain("CNT005"))
	require.NoError(t, out.SaveToFile(path))

	in := NewStrainCollection()
	require.NoError(t, in.AddFromFile(path))

	require.Equal(t, 2, in.Len())
	loaded := in.Lookup("CNB091")
	require.NotNil(t, loaded)
	assert.ElementsMatch(t, []string{"CNB091.mzXML", "GCF_000514775"}, loaded.Aliases())
	assert.NotNil(t, in.Lookup("GCF_000514775"))
	assert.NotNil(t, in.Lookup("CNT005"))
}

func TestStrainCollectionAddFromFileSkipsEmptyRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strain_mappings.csv")
	content := "CNB091,CNB091.mzXML\n,verwaister-alias\nCNT005\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c := NewStrainCollection()
	require.NoError(t, c.AddFromFile(path))
	assert.Equal(t, 2, c.Len())
	assert.Nil(t, c.Lookup("verwaister-alias"))
}

func TestStrainCollectionAddFromFileMissing(t *testing.T) {
	c := NewStrainCollection()
	err := c.AddFromFile(filepath.Join(t.TempDir(), "fehlt.csv"))
	assert.Error(t, err)
}
