package rootfs

import "alpenroot/internal/fetch"

// Default bootstrap artifacts: the statically linked apk binary and the
// Alpine package-signing keys, each pinned to a SHA-256 digest. Overridable
// through configuration; a digest mismatch on any of them aborts the run.

// DefaultApkTool is the static apk binary used to bootstrap the target root.
var DefaultApkTool = fetch.Artifact{
	URI:    "https://gitlab.alpinelinux.org/api/v4/projects/5/packages/generic/v2.14.4/x86_64/apk.static",
	SHA256: "7851d3b5db07e1f936f74fa2a1d31ea1ba7d04cb9b2075da7ae40871a247fd2b",
}

// DefaultTrustKeys are the Alpine signing keys imported into the target
// root's key store, one per supported architecture family.
var DefaultTrustKeys = []fetch.Artifact{
	{
		URI:    "https://alpinelinux.org/keys/alpine-devel%40lists.alpinelinux.org-4a6a0840.rsa.pub",
		SHA256: "9c102bcc376af1498d549b77bdbfa815ae86faa1d2d82f040e616b18ef2df2d4",
	},
	{
		URI:    "https://alpinelinux.org/keys/alpine-devel%40lists.alpinelinux.org-5243ef4b.rsa.pub",
		SHA256: "ebf31683b56410ecc4c00acd9f6e2839e237a3b62b5ae7ef686705c7ba0396a9",
	},
	{
		URI:    "https://alpinelinux.org/keys/alpine-devel%40lists.alpinelinux.org-524d27bb.rsa.pub",
		SHA256: "ebf31683b56410ecc4c00acd9f6e2839e237a3b62b5ae7ef686705c7ba0396a9",
	},
	{
		URI:    "https://alpinelinux.org/keys/alpine-devel%40lists.alpinelinux.org-5261cecb.rsa.pub",
		SHA256: "8d15e6cc9c2afcdbfab047341716e77de0c0f179d8576e347281cdfcd8fb7aeb",
	},
	{
		URI:    "https://alpinelinux.org/keys/alpine-devel%40lists.alpinelinux.org-58199dcc.rsa.pub",
		SHA256: "971884dc9a0d249e0a0e2112d23ebbd5b3e0c57cc7e81e731f7f09f5e4f4d14a",
	},
	{
		URI:    "https://alpinelinux.org/keys/alpine-devel%40lists.alpinelinux.org-58cbb476.rsa.pub",
		SHA256: "cbd6b6cbbb03b712e46e71a08846e1cf4ab5b0b9ef354ca67cb0e4d98f406dd5",
	},
	{
		URI:    "https://alpinelinux.org/keys/alpine-devel%40lists.alpinelinux.org-58e4f17d.rsa.pub",
		SHA256: "a4dbcb1d4a7b6d7a30e1eb5e52d6efdbfae59b2f7cbd8078007f1cd76b23ff23",
	},
	{
		URI:    "https://alpinelinux.org/keys/alpine-devel%40lists.alpinelinux.org-60ac2099.rsa.pub",
		SHA256: "a9a3e5fbe6f1e10f588d53b7bcc3e4c19c13a9c0f2cf099c34c0e0cbba701e2a",
	},
	{
		URI:    "https://alpinelinux.org/keys/alpine-devel%40lists.alpinelinux.org-6165ee59.rsa.pub",
		SHA256: "0caf5662fde45616d88cfd7021b7bda269a2fcaf311e51c48945a967a609ec0b",
	},
}
